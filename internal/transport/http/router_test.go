package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/ingest"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage/memory"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	normalizer := ingest.NewNormalizer(ingest.Policy{})
	svc := service.NewMessageService(store, store, normalizer, zap.NewNop())

	cfg := &config.Config{
		Ingest: config.IngestConfig{
			MaxFieldLength: ingest.DefaultMaxFieldLength,
			MaxBodyBytes:   1024 * 1024,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		MessageService: svc,
		Logger:         zap.NewNop(),
	})
	return router, store
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSimulateThenList(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/simulate-email", gin.H{
		"toEmail":   "User@Temp.Example",
		"fromEmail": "sender@example.com",
		"subject":   "hello",
		"body":      "hi there",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var simResp struct {
		Success bool  `json:"success"`
		EmailID int64 `json:"emailId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &simResp))
	assert.True(t, simResp.Success)
	assert.Positive(t, simResp.EmailID)

	w = doJSON(router, http.MethodGet, "/api/emails/user@temp.example", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, simResp.EmailID, messages[0].ID)
	assert.Equal(t, "sender@example.com", messages[0].Sender)
	assert.Equal(t, "hi there", messages[0].BodyText)
}

func TestSimulateRequiresToEmail(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/simulate-email", gin.H{"body": "no recipient"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "toEmail")
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	router, store := newTestRouter(t)

	cases := []struct {
		name        string
		body        string
		contentType string
		stored      bool
	}{
		{
			name:        "recognized form fields",
			body:        "recipient=a%40b.com&sender=c%40d.com&subject=S&body-plain=hi",
			contentType: "application/x-www-form-urlencoded",
			stored:      true,
		},
		{
			name:        "unrecognized json",
			body:        `{"foo":"bar"}`,
			contentType: "application/json",
			stored:      false,
		},
		{
			name:        "unparseable mime",
			body:        "From: a@b.c\r\nTo: x@y.z\r\nContent-Type: multipart/mixed; boundary=\"q\"\r\n\r\n--q\r\nContent-Type: text/plain\r\n\r\nbody without closing boundary\r\n",
			contentType: "message/rfc822",
			stored:      false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/webhook/email", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Success bool `json:"success"`
				Stored  bool `json:"stored"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tc.stored, resp.Stored)
		})
	}

	messages, err := store.ListMessagesByRecipient("a@b.com", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].BodyText)
}

func TestWebhookRejectsOversizePayload(t *testing.T) {
	router, _ := newTestRouter(t)

	body := strings.Repeat("x", 2*1024*1024)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGetEmail(t *testing.T) {
	router, store := newTestRouter(t)

	id, err := store.InsertMessage(&domain.Message{
		Recipient:  "user@temp.example",
		Sender:     "a@b.c",
		Subject:    "s",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/api/email/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, id, msg.ID)

	w = doJSON(router, http.MethodGet, "/api/email/99999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/email/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteEmailTwice(t *testing.T) {
	router, store := newTestRouter(t)

	id, err := store.InsertMessage(&domain.Message{
		Recipient:  "user@temp.example",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	path := fmt.Sprintf("/api/email/%d", id)

	w := doJSON(router, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = doJSON(router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanup(t *testing.T) {
	router, store := newTestRouter(t)

	_, err := store.InsertMessage(&domain.Message{
		Recipient:  "old@temp.example",
		ReceivedAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	_, err = store.InsertMessage(&domain.Message{
		Recipient:  "fresh@temp.example",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	w := doJSON(router, http.MethodPost, "/api/cleanup", gin.H{"hours": 24})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Removed int  `json:"removed"`
		Hours   int  `json:"hours"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Removed)
	assert.Equal(t, 24, resp.Hours)
}

func TestStatsAndHealth(t *testing.T) {
	router, store := newTestRouter(t)

	_, err := store.InsertMessage(&domain.Message{
		Recipient:  "user@temp.example",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.StoreStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalMessages)

	w = doJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestListLimitValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/emails/user@temp.example?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
