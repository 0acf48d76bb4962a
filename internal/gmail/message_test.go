package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func textMessage(headers map[string]string, body string) *gmail.Message {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
	}
	for name, value := range headers {
		payload.Headers = append(payload.Headers, &gmail.MessagePartHeader{Name: name, Value: value})
	}
	return &gmail.Message{Id: "msg-1", ThreadId: "thread-1", Payload: payload}
}

func TestHeaderValue(t *testing.T) {
	msg := textMessage(map[string]string{
		"From":    "Alice <alice@example.com>",
		"Subject": "[MEETBROKER] Planning",
	}, "body")

	assert.Equal(t, "Alice <alice@example.com>", HeaderValue(msg, "From"))
	assert.Equal(t, "[MEETBROKER] Planning", HeaderValue(msg, "subject"), "header lookup is case-insensitive")
	assert.Equal(t, "", HeaderValue(msg, "Message-ID"))
	assert.Equal(t, "", HeaderValue(&gmail.Message{}, "From"))
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
	}{
		{"display name", "Alice <alice@example.com>", "alice@example.com"},
		{"bare address", "alice@example.com", "alice@example.com"},
		{"uppercase", "Alice <ALICE@Example.COM>", "alice@example.com"},
		{"unparseable", "not an address", "not an address"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := textMessage(map[string]string{"From": tc.from}, "body")
			assert.Equal(t, tc.want, SenderAddress(msg))
		})
	}

	assert.Equal(t, "", SenderAddress(&gmail.Message{}))
}

func TestMessageBodyPlainText(t *testing.T) {
	msg := textMessage(nil, "hello negotiation")

	body, err := MessageBody(msg)
	require.NoError(t, err)
	assert.Equal(t, "hello negotiation", body)
}

func TestMessageBodyMultipart(t *testing.T) {
	msg := &gmail.Message{
		Id: "msg-1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/html",
					Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>html</p>"))},
				},
				{
					MimeType: "text/plain",
					Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("plain wins"))},
				},
			},
		},
	}

	body, err := MessageBody(msg)
	require.NoError(t, err)
	assert.Equal(t, "plain wins", body)
}

func TestMessageBodyFallsBackToHTML(t *testing.T) {
	msg := &gmail.Message{
		Id: "msg-1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/html",
					Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>only html</p>"))},
				},
			},
		},
	}

	body, err := MessageBody(msg)
	require.NoError(t, err)
	assert.Equal(t, "<p>only html</p>", body)
}

func TestMessageBodyStandardBase64Fallback(t *testing.T) {
	// Some relays re-encode bodies with the standard alphabet; its '/'
	// and '+' characters are rejected by the URL decoding tried first.
	raw := []byte{0xff, 0xfe, 0xfd}
	msg := &gmail.Message{
		Id: "msg-1",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: base64.StdEncoding.EncodeToString(raw)},
		},
	}

	body, err := MessageBody(msg)
	require.NoError(t, err)
	assert.Equal(t, string(raw), body)
}

func TestMessageBodyMissing(t *testing.T) {
	_, err := MessageBody(&gmail.Message{Id: "msg-1"})
	assert.Error(t, err)

	_, err = MessageBody(&gmail.Message{Id: "msg-1", Payload: &gmail.MessagePart{MimeType: "image/png"}})
	assert.Error(t, err)
}
