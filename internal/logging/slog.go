package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyThread      = "thread"
	KeyRound       = "round"
	KeyStatus      = "status"
	KeyOperation   = "operation"
	KeyAccount     = "account"
	KeyParticipant = "participant_hash"
	KeyError       = "error"
)

// Thread returns a slog attribute for the email thread identity.
func Thread(threadID string) slog.Attr {
	return slog.String(KeyThread, threadID)
}

// Round returns a slog attribute for the negotiation round.
func Round(round int) slog.Attr {
	return slog.Int(KeyRound, round)
}

// Status returns a slog attribute for a session status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Account returns a slog attribute for the Google account name.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, account)
}

// Err returns a slog attribute for an error. A nil error yields an
// empty group that slog omits from output, so Err(maybeNil) is always
// safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email address
// for logging. This allows correlating entries without exposing PII.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return "user:" + hex.EncodeToString(hash[:8])
}

// Participant returns a slog attribute with the anonymized address of
// a negotiation participant.
func Participant(email string) slog.Attr {
	return slog.String(KeyParticipant, AnonymizeEmail(email))
}

// New constructs a slog.Logger writing to stderr. format is "text" or
// "json"; any other value falls back to text. debug enables debug
// level output.
func New(format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
