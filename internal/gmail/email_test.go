package gmail

import (
	"mime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRFC2047(t *testing.T) {
	assert.Equal(t, "[MEETBROKER] Planning", encodeRFC2047("[MEETBROKER] Planning"),
		"pure ASCII stays untouched")
	assert.Equal(t, "", encodeRFC2047(""))

	encoded := encodeRFC2047("Wöchentliches Planning")
	assert.True(t, strings.HasPrefix(encoded, "=?UTF-8?"), "non-ASCII subjects get encoded, got %q", encoded)

	decoded, err := new(mime.WordDecoder).DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, "Wöchentliches Planning", decoded)
}

func TestBuildRFC2822(t *testing.T) {
	msg := buildRFC2822([]string{"bob@example.com"}, "Re: [MEETBROKER] Planning", "body text",
		"<orig@mail.example>", "<root@mail.example> <orig@mail.example>")

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, found)
	assert.Equal(t, "body text", body)

	assert.Contains(t, headers, "To: bob@example.com\r\n")
	assert.Contains(t, headers, "Subject: Re: [MEETBROKER] Planning\r\n")
	assert.Contains(t, headers, "In-Reply-To: <orig@mail.example>\r\n")
	assert.Contains(t, headers, "References: <root@mail.example> <orig@mail.example>\r\n")
	assert.Contains(t, headers, "Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	assert.Contains(t, headers, "MIME-Version: 1.0")
}

func TestBuildRFC2822OmitsEmptyThreadingHeaders(t *testing.T) {
	msg := buildRFC2822([]string{"bob@example.com"}, "[MEETBROKER] Planning", "body", "", "")

	assert.NotContains(t, msg, "In-Reply-To")
	assert.NotContains(t, msg, "References")
}

func TestCoordinationQuery(t *testing.T) {
	q := coordinationQuery()
	assert.Contains(t, q, "is:unread")
	assert.Contains(t, q, "in:inbox")
	assert.Contains(t, q, `subject:"[MEETBROKER]"`)
}
