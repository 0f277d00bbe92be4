package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(hub *Hub, id string) *Client {
	return &Client{
		ID:        id,
		send:      make(chan []byte, 16),
		hub:       hub,
		addresses: make(map[string]bool),
		log:       zap.NewNop(),
	}
}

func TestHub_BroadcastToSubscribedAddress(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())

	client := newTestClient(hub, "c1")
	hub.clients[client.ID] = client
	client.subscribeAddress("User@Temp.Example")

	var confirm Message
	require.NoError(t, json.Unmarshal(<-client.send, &confirm))
	assert.Equal(t, MessageTypeSubscribed, confirm.Type)
	assert.Equal(t, "user@temp.example", confirm.Address)

	hub.broadcastToAddress("user@temp.example", &Message{
		Type:      MessageTypeNewMail,
		Address:   "user@temp.example",
		Timestamp: time.Now(),
	})

	var got Message
	require.NoError(t, json.Unmarshal(<-client.send, &got))
	assert.Equal(t, MessageTypeNewMail, got.Type)

	hub.broadcastToAddress("other@temp.example", &Message{Type: MessageTypeNewMail})
	assert.Empty(t, client.send)
}

func TestHub_BroadcastConcurrentWithSubscriptionChanges(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())

	stable := newTestClient(hub, "stable")
	hub.clients[stable.ID] = stable
	stable.subscribeAddress("busy@temp.example")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hub.broadcastToAddress("busy@temp.example", &Message{Type: MessageTypeNewMail})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			churn := newTestClient(hub, "churn")
			churn.subscribeAddress("busy@temp.example")
			churn.unsubscribeAddress("busy@temp.example")
		}
	}()

	wg.Wait()
}
