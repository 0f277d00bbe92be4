package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_FormFields(t *testing.T) {
	n := NewNormalizer(Policy{})

	body := "recipient=a%40b.com&sender=c%40d.com&subject=S&body-plain=hi"
	result := n.Normalize([]byte(body), "application/x-www-form-urlencoded")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, ShapeFormFields, result.Shape)
	require.NotNil(t, result.Email)
	assert.Equal(t, "a@b.com", result.Email.Recipient)
	assert.Equal(t, "c@d.com", result.Email.Sender)
	assert.Equal(t, "S", result.Email.Subject)
	assert.Equal(t, "hi", result.Email.Text)
	assert.False(t, result.Email.Truncated)
}

func TestNormalizer_FormFieldsAsJSON(t *testing.T) {
	n := NewNormalizer(Policy{})

	body := `{"recipient":"a@b.com","from":"c@d.com","body-html":"<p>hi</p>"}`
	result := n.Normalize([]byte(body), "application/json")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, ShapeFormFields, result.Shape)
	assert.Equal(t, "a@b.com", result.Email.Recipient)
	assert.Equal(t, "c@d.com", result.Email.Sender)
	assert.Equal(t, "<p>hi</p>", result.Email.HTML)
}

func TestNormalizer_EventJSON(t *testing.T) {
	n := NewNormalizer(Policy{})

	payload := map[string]any{
		"event-data": map[string]any{
			"event":     "delivered",
			"recipient": "user@temp.example",
			"message": map[string]any{
				"headers": map[string]any{
					"from":    "Sender <sender@example.com>",
					"subject": "Welcome",
					"to":      "user@temp.example",
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	result := n.Normalize(body, "application/json")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, ShapeEventJSON, result.Shape)
	assert.Equal(t, "user@temp.example", result.Email.Recipient)
	assert.Equal(t, "sender@example.com", result.Email.Sender)
	assert.Equal(t, "Welcome", result.Email.Subject)
	// Provider does not forward content for event payloads; body is synthesized.
	assert.Contains(t, result.Email.Text, "delivered")
	assert.Contains(t, result.Email.Text, "user@temp.example")
}

func TestNormalizer_EventJSONWinsOverGenericJSON(t *testing.T) {
	n := NewNormalizer(Policy{})

	// Payload satisfies both the event shape and the generic JSON shape;
	// priority order must pick the event shape.
	body := `{"to":"other@x.com","event-data":{"event":"opened","recipient":"user@temp.example"}}`
	result := n.Normalize([]byte(body), "application/json")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, ShapeEventJSON, result.Shape)
	assert.Equal(t, "user@temp.example", result.Email.Recipient)
}

func TestNormalizer_GenericJSON(t *testing.T) {
	n := NewNormalizer(Policy{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"to field", `{"to":"a@b.com","from":"c@d.com","text":"hello"}`, "a@b.com"},
		{"capitalized keys", `{"To":"a@b.com","From":"c@d.com","body":"hello"}`, "a@b.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := n.Normalize([]byte(tt.body), "application/json")
			require.Equal(t, StatusRecognized, result.Status)
			assert.Equal(t, ShapeGenericJSON, result.Shape)
			assert.Equal(t, tt.want, result.Email.Recipient)
			assert.Equal(t, "hello", result.Email.Text)
		})
	}
}

func TestNormalizer_RawMIME(t *testing.T) {
	n := NewNormalizer(Policy{})

	raw := strings.Join([]string{
		"From: Jane Doe <jane@x.com>",
		"To: inbox@temp.example",
		"Subject: Hello",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hi there",
	}, "\r\n")

	result := n.Normalize([]byte(raw), "text/plain")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, ShapeRawMIME, result.Shape)
	assert.Equal(t, "inbox@temp.example", result.Email.Recipient)
	assert.Equal(t, "jane@x.com", result.Email.Sender)
	assert.Equal(t, "Hello", result.Email.Subject)
	assert.Equal(t, "Hi there", strings.TrimSpace(result.Email.Text))
}

func TestNormalizer_RawMIMEMultipartWithAttachment(t *testing.T) {
	n := NewNormalizer(Policy{})

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: inbox@temp.example",
		"Subject: Report",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="xyz"`,
		"",
		"--xyz",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"see attached",
		"--xyz",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<b>see attached</b>",
		"--xyz",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="report.pdf"`,
		"",
		"%PDF-1.4 fake content",
		"--xyz--",
	}, "\r\n")

	result := n.Normalize([]byte(raw), "message/rfc822")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, "see attached", strings.TrimSpace(result.Email.Text))
	assert.Equal(t, "<b>see attached</b>", strings.TrimSpace(result.Email.HTML))
	require.Len(t, result.Email.Attachments, 1)
	assert.Equal(t, "report.pdf", result.Email.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", result.Email.Attachments[0].ContentType)
	assert.Greater(t, result.Email.Attachments[0].Size, int64(0))
}

func TestNormalizer_RawMIMEParseFailure(t *testing.T) {
	n := NewNormalizer(Policy{})

	// Valid headers but a multipart body that ends before the closing
	// boundary; part iteration fails with unexpected EOF.
	body := strings.Join([]string{
		"From: a@b.com",
		"To: inbox@temp.example",
		`Content-Type: multipart/mixed; boundary="xyz"`,
		"",
		"--xyz",
		"Content-Type: text/plain",
		"",
		"hello",
	}, "\r\n")
	result := n.Normalize([]byte(body), "text/plain")

	assert.Equal(t, StatusParseFailed, result.Status)
	assert.Equal(t, ShapeRawMIME, result.Shape)
	assert.Nil(t, result.Email)
}

func TestNormalizer_Unrecognized(t *testing.T) {
	n := NewNormalizer(Policy{})

	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{"json without address fields", `{"foo":"bar"}`, "application/json"},
		{"plain text without headers", "just some text", "text/plain"},
		{"empty body", "", "application/json"},
		{"json with empty recipient", `{"event-data":{"event":"delivered"}}`, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := n.Normalize([]byte(tt.body), tt.contentType)
			assert.Equal(t, StatusUnrecognized, result.Status)
			assert.Nil(t, result.Email)
		})
	}
}

func TestNormalizer_Truncation(t *testing.T) {
	n := NewNormalizer(Policy{MaxFieldLength: 16})

	long := strings.Repeat("x", 100)
	body := "recipient=a%40b.com&body-plain=" + long
	result := n.Normalize([]byte(body), "application/x-www-form-urlencoded")

	require.Equal(t, StatusRecognized, result.Status)
	assert.True(t, result.Email.Truncated)
	assert.Len(t, result.Email.Text, 16)
}

func TestNormalizer_SenderAndSubjectDefaults(t *testing.T) {
	n := NewNormalizer(Policy{})

	result := n.Normalize([]byte(`{"to":"a@b.com","text":"hi"}`), "application/json")

	require.Equal(t, StatusRecognized, result.Status)
	assert.Equal(t, UnknownSender, result.Email.Sender)
	assert.Equal(t, DefaultSubject, result.Email.Subject)
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe <jane@x.com>", "jane@x.com"},
		{"jane@x.com", "jane@x.com"},
		{"<jane@x.com>", "jane@x.com"},
		{"  jane@x.com  ", "jane@x.com"},
		{"", ""},
		{"not an address", "not an address"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractAddress(tt.in), "input %q", tt.in)
	}
}
