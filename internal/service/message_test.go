package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/ingest"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
)

func newTestService() (*MessageService, *memory.Store) {
	store := memory.NewStore()
	normalizer := ingest.NewNormalizer(ingest.Policy{})
	return NewMessageService(store, store, normalizer, zap.NewNop()), store
}

type capturedNotification struct {
	recipient string
	message   *domain.Message
}

type fakeNotifier struct {
	notifications []capturedNotification
}

func (f *fakeNotifier) NotifyNewMail(recipient string, message *domain.Message) {
	f.notifications = append(f.notifications, capturedNotification{recipient, message})
}

func TestMessageService_Simulate(t *testing.T) {
	svc, _ := newTestService()
	notifier := &fakeNotifier{}
	svc.SetNotifier(notifier)

	msg, err := svc.Simulate(SimulateInput{
		ToEmail:   "User@Temp.Example",
		FromEmail: "Tester <tester@example.com>",
		Subject:   "hi",
		Body:      "hello there",
	})
	require.NoError(t, err)
	assert.Positive(t, msg.ID)
	assert.Equal(t, "user@temp.example", msg.Recipient)
	assert.Equal(t, "tester@example.com", msg.Sender)
	assert.Equal(t, "hi", msg.Subject)
	assert.False(t, msg.ReceivedAt.IsZero())

	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, "user@temp.example", notifier.notifications[0].recipient)
}

func TestMessageService_SimulateRequiresRecipient(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Simulate(SimulateInput{Body: "no recipient"})
	assert.ErrorIs(t, err, ErrRecipientRequired)

	_, err = svc.Simulate(SimulateInput{ToEmail: "   ", Body: "blank recipient"})
	assert.ErrorIs(t, err, ErrRecipientRequired)
}

func TestMessageService_SimulateDefaults(t *testing.T) {
	svc, _ := newTestService()

	msg, err := svc.Simulate(SimulateInput{ToEmail: "user@temp.example"})
	require.NoError(t, err)
	assert.Equal(t, ingest.UnknownSender, msg.Sender)
	assert.Equal(t, ingest.DefaultSubject, msg.Subject)
}

func TestMessageService_IngestRecognized(t *testing.T) {
	svc, _ := newTestService()

	body := []byte(`{"to":"user@temp.example","from":"a@b.c","text":"hello"}`)
	result, err := svc.Ingest(body, "application/json")
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusRecognized, result.Status)
	assert.Equal(t, ingest.ShapeGenericJSON, result.Shape)
	require.NotNil(t, result.Message)
	assert.Positive(t, result.Message.ID)

	messages, err := svc.ListByRecipient("user@temp.example", 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestMessageService_IngestUnrecognizedNotStored(t *testing.T) {
	svc, store := newTestService()

	result, err := svc.Ingest([]byte(`{"foo":"bar"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusUnrecognized, result.Status)
	assert.Nil(t, result.Message)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
}

func TestMessageService_IngestSMTP(t *testing.T) {
	svc, _ := newTestService()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: header-rcpt@temp.example",
		"Subject: via smtp",
		"Content-Type: text/plain",
		"",
		"smtp body",
	}, "\r\n"))

	err := svc.IngestSMTP("sender@example.com", []string{"Alice@temp.example", "bob@temp.example"}, raw)
	require.NoError(t, err)

	// Envelope recipient wins over the To header, one copy per recipient.
	aliceMessages, err := svc.ListByRecipient("alice@temp.example", 10)
	require.NoError(t, err)
	require.Len(t, aliceMessages, 1)
	assert.Equal(t, "via smtp", aliceMessages[0].Subject)

	bobMessages, err := svc.ListByRecipient("bob@temp.example", 10)
	require.NoError(t, err)
	assert.Len(t, bobMessages, 1)

	headerMessages, err := svc.ListByRecipient("header-rcpt@temp.example", 10)
	require.NoError(t, err)
	assert.Empty(t, headerMessages)
}

func TestMessageService_ListByRecipientCaseInsensitive(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Simulate(SimulateInput{ToEmail: "user@temp.example", Body: "x"})
	require.NoError(t, err)

	messages, err := svc.ListByRecipient("USER@TEMP.EXAMPLE", 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestMessageService_ListLimitFromConfig(t *testing.T) {
	svc, _ := newTestService()
	svc.SetListLimit(2)

	for i := 0; i < 3; i++ {
		_, err := svc.Simulate(SimulateInput{ToEmail: "user@temp.example", Body: "x"})
		require.NoError(t, err)
	}

	// An unspecified limit uses the configured default cap.
	messages, err := svc.ListByRecipient("user@temp.example", 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// An explicit limit still wins.
	messages, err = svc.ListByRecipient("user@temp.example", 10)
	require.NoError(t, err)
	assert.Len(t, messages, 3)
}

func TestMessageService_DeleteNotFound(t *testing.T) {
	svc, _ := newTestService()

	assert.ErrorIs(t, svc.Delete(42), storage.ErrMessageNotFound)
}

func TestMessageService_Cleanup(t *testing.T) {
	svc, store := newTestService()

	_, err := store.InsertMessage(&domain.Message{
		Recipient:  "old@temp.example",
		ReceivedAt: time.Now().UTC().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Simulate(SimulateInput{ToEmail: "fresh@temp.example", Body: "x"})
	require.NoError(t, err)

	removed, err := svc.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMessages)
}
