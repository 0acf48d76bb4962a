package gmail

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// GetMessage retrieves a full Gmail message
func (c *Client) GetMessage(messageID string) (*gmail.Message, error) {
	msg, err := c.svc.Messages.Get("me", messageID).Format("full").Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// HeaderValue extracts a header value from a Gmail message
func HeaderValue(m *gmail.Message, header string) string {
	mpart := m.Payload
	if mpart == nil {
		return ""
	}
	for _, mph := range mpart.Headers {
		if strings.EqualFold(mph.Name, header) {
			return mph.Value
		}
	}
	return ""
}

// SenderAddress extracts the bare email address from a message's From
// header, e.g. "Alice <alice@example.com>" yields "alice@example.com".
func SenderAddress(m *gmail.Message) string {
	from := HeaderValue(m, "From")
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return strings.ToLower(addr.Address)
}

// MessageBody extracts the plain-text body from a message, falling back
// to the HTML part when no text part exists.
func MessageBody(msg *gmail.Message) (string, error) {
	if msg.Payload == nil {
		return "", fmt.Errorf("message %s has no payload", msg.Id)
	}

	body := findPart(msg.Payload, "text/plain")
	if body == "" {
		body = findPart(msg.Payload, "text/html")
	}
	if body == "" {
		return "", fmt.Errorf("no text body found in message %s", msg.Id)
	}

	// Decode base64url-encoded body data
	decoded, err := base64.URLEncoding.DecodeString(body)
	if err != nil {
		// Try with standard base64 if URLEncoding fails
		decoded, err = base64.StdEncoding.DecodeString(body)
		if err != nil {
			return "", fmt.Errorf("failed to decode message body: %w", err)
		}
	}

	return string(decoded), nil
}

// findPart returns the raw body data of the first part with the given
// MIME type.
func findPart(payload *gmail.MessagePart, mimeType string) string {
	if payload.MimeType == mimeType && payload.Body != nil && payload.Body.Data != "" {
		return payload.Body.Data
	}

	var body string
	walkParts(payload, func(part *gmail.MessagePart) {
		if body == "" && part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			body = part.Body.Data
		}
	})
	return body
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}
