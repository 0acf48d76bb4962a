package gmail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// EmailMessage represents an email to be sent
type EmailMessage struct {
	To      []string
	Subject string
	Body    string
}

// encodeRFC2047 encodes a string for use in email headers according to RFC 2047
// This is necessary for non-ASCII characters (like German umlauts) in subjects
func encodeRFC2047(s string) string {
	needsEncoding := false
	for _, r := range s {
		if r > 127 {
			needsEncoding = true
			break
		}
	}
	if !needsEncoding {
		return s
	}
	return mime.BEncoding.Encode("UTF-8", s)
}

// buildRFC2822 assembles a plain-text email in RFC 2822 format.
// inReplyTo and references may be empty for a fresh thread.
func buildRFC2822(to []string, subject, body, inReplyTo, references string) string {
	var b strings.Builder

	b.WriteString("To: ")
	b.WriteString(strings.Join(to, ", "))
	b.WriteString("\r\n")

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(subject))
	b.WriteString("\r\n")

	// Threading headers keep the negotiation on one conversation.
	if inReplyTo != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(inReplyTo)
		b.WriteString("\r\n")
	}
	if references != "" {
		b.WriteString("References: ")
		b.WriteString(references)
		b.WriteString("\r\n")
	}

	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return b.String()
}

// SendEmail sends an email through the Gmail API and returns the new
// message and thread IDs.
func (c *Client) SendEmail(msg *EmailMessage) (messageID, threadID string, err error) {
	if len(msg.To) == 0 {
		return "", "", fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return "", "", fmt.Errorf("subject is required")
	}
	if msg.Body == "" {
		return "", "", fmt.Errorf("body is required")
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildRFC2822(msg.To, msg.Subject, msg.Body, "", "")))

	sent, err := c.svc.Messages.Send("me", &gmail.Message{Raw: raw}).Do()
	if err != nil {
		return "", "", fmt.Errorf("failed to send email: %w", err)
	}

	return sent.Id, sent.ThreadId, nil
}

// ReplyToThread sends a reply on an existing thread, threading off the
// most recent message so mail clients keep the conversation together.
func (c *Client) ReplyToThread(threadID, to, subject, body string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("threadID is required")
	}
	if body == "" {
		return "", fmt.Errorf("body is required")
	}

	inReplyTo, references := c.threadingHeaders(threadID)

	replySubject := subject
	if !strings.HasPrefix(strings.ToLower(replySubject), "re:") {
		replySubject = "Re: " + replySubject
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildRFC2822([]string{to}, replySubject, body, inReplyTo, references)))

	sent, err := c.svc.Messages.Send("me", &gmail.Message{
		Raw:      raw,
		ThreadId: threadID,
	}).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}

	return sent.Id, nil
}

// threadingHeaders derives In-Reply-To and References from the last
// message of a thread. Missing headers degrade to empty values; the
// ThreadId on the send request still keeps Gmail's own threading.
func (c *Client) threadingHeaders(threadID string) (inReplyTo, references string) {
	thread, err := c.svc.Threads.Get("me", threadID).Format("metadata").
		MetadataHeaders("Message-ID", "References").Do()
	if err != nil || len(thread.Messages) == 0 {
		return "", ""
	}

	last := thread.Messages[len(thread.Messages)-1]
	messageID := HeaderValue(last, "Message-ID")
	prior := HeaderValue(last, "References")

	if messageID == "" {
		return "", ""
	}
	if prior != "" {
		return messageID, prior + " " + messageID
	}
	return messageID, messageID
}
