package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// MessageHandling captures all information about one handled
// coordination message for audit logging. This provides an audit
// trail for every inbound message the agent acts on.
//
// # Privacy Considerations
//
// The Sender field contains PII. When logging, consider:
//   - Using SenderDomain() to get only the domain for metrics/general logs
//   - Only logging full email in audit-specific log streams
//   - Ensuring audit logs have appropriate access controls
type MessageHandling struct {
	// Kind is the coordination event kind (schedule_request, schedule_proposal, ...)
	Kind string

	// Sender is the counterpart's email address
	Sender string

	// Account is the Google account name the agent runs under (default, work, personal)
	Account string

	// ThreadID is the email thread carrying the negotiation
	ThreadID string

	// Round is the negotiation round the message belongs to
	Round int

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// SenderDomain returns the domain portion of the sender's email for
// lower-cardinality logging.
func (mh *MessageHandling) SenderDomain() string {
	return ExtractUserDomain(mh.Sender)
}

// Status returns "success" or "error" based on the Success field.
func (mh *MessageHandling) Status() string {
	if mh.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
// This provides a consistent set of fields for all message handling logs.
//
// # Cardinality
//
// This function uses cardinality-controlled values (sender_domain)
// for metrics-compatible logging. For full audit logging, use LogAuditAttrs.
func (mh *MessageHandling) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", mh.Kind),
		slog.String("sender_domain", mh.SenderDomain()),
		slog.Duration("duration", mh.Duration),
		slog.Bool("success", mh.Success),
	}

	// Add optional fields only if present
	if mh.Account != "" && mh.Account != "default" {
		attrs = append(attrs, slog.String("account", mh.Account))
	}
	if mh.ThreadID != "" {
		attrs = append(attrs, slog.String("thread", mh.ThreadID))
	}
	if mh.Round > 0 {
		attrs = append(attrs, slog.Int("round", mh.Round))
	}
	if mh.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", mh.TraceID))
	}
	if mh.Error != "" {
		attrs = append(attrs, slog.String("error", mh.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes for full audit logging.
// This includes the full sender email for compliance/audit purposes.
//
// # Security Warning
//
// This method includes PII (full email). Ensure audit logs are:
//   - Stored securely with appropriate access controls
//   - Not exposed to general monitoring dashboards
//   - Retained according to compliance requirements
func (mh *MessageHandling) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", mh.Kind),
		slog.String("sender", mh.Sender),
		slog.Duration("duration", mh.Duration),
		slog.Bool("success", mh.Success),
	}

	// Add all optional fields
	if mh.Account != "" {
		attrs = append(attrs, slog.String("account", mh.Account))
	}
	if mh.ThreadID != "" {
		attrs = append(attrs, slog.String("thread", mh.ThreadID))
	}
	if mh.Round > 0 {
		attrs = append(attrs, slog.Int("round", mh.Round))
	}
	if mh.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", mh.TraceID))
	}
	if mh.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", mh.SpanID))
	}
	if mh.Error != "" {
		attrs = append(attrs, slog.String("error", mh.Error))
	}

	return attrs
}

// NewMessageHandling creates a new MessageHandling with timing started.
// Call Complete() when the message has been handled.
func NewMessageHandling(kind string) *MessageHandling {
	return &MessageHandling{
		Kind:      kind,
		StartTime: time.Now(),
	}
}

// WithSender sets the counterpart's email address.
func (mh *MessageHandling) WithSender(email string) *MessageHandling {
	mh.Sender = email
	return mh
}

// WithAccount sets the Google account name.
func (mh *MessageHandling) WithAccount(account string) *MessageHandling {
	mh.Account = account
	return mh
}

// WithThread sets the thread and round the message belongs to.
func (mh *MessageHandling) WithThread(threadID string, round int) *MessageHandling {
	mh.ThreadID = threadID
	mh.Round = round
	return mh
}

// WithSpanContext extracts trace context from the current span.
func (mh *MessageHandling) WithSpanContext(ctx context.Context) *MessageHandling {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		mh.TraceID = span.SpanContext().TraceID().String()
		mh.SpanID = span.SpanContext().SpanID().String()
	}
	return mh
}

// Complete marks the handling as completed and calculates duration.
// Returns the same MessageHandling for method chaining.
func (mh *MessageHandling) Complete(success bool, err error) *MessageHandling {
	mh.Duration = time.Since(mh.StartTime)
	mh.Success = success
	if err != nil {
		mh.Error = err.Error()
	}
	return mh
}

// CompleteWithError marks the handling as failed with the given error.
func (mh *MessageHandling) CompleteWithError(err error) *MessageHandling {
	return mh.Complete(false, err)
}

// CompleteSuccess marks the handling as successful.
func (mh *MessageHandling) CompleteSuccess() *MessageHandling {
	return mh.Complete(true, nil)
}

// AuditLogger provides structured audit logging for handled messages.
// It wraps slog.Logger with convenience methods for logging negotiation activity.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs (anonymized identifiers are used instead).
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include full email addresses in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogMessageHandling logs a handled message using the standard log attributes.
// This is suitable for general operational logging with cardinality controls.
// If the logger is configured with IncludePII, full sender emails are logged;
// otherwise, only domain-based anonymized identifiers are used.
func (al *AuditLogger) LogMessageHandling(mh *MessageHandling) {
	if !al.enabled {
		return
	}

	// Choose between PII and anonymized logging based on configuration
	var attrs []slog.Attr
	if al.includePII {
		attrs = mh.LogAuditAttrs()
	} else {
		attrs = mh.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if mh.Success {
		al.logger.Info("message_handled", args...)
	} else {
		al.logger.Warn("message_failed", args...)
	}
}

// LogMessageAudit logs a handled message with full audit details.
// This includes PII (full email addresses) for compliance/audit purposes.
// SECURITY: Ensure audit logs are routed to secure storage with appropriate access controls.
//
// Note: This method respects the enabled flag but always includes PII when called,
// regardless of the IncludePII configuration. Use LogMessageHandling for
// configuration-aware logging.
func (al *AuditLogger) LogMessageAudit(mh *MessageHandling) {
	if !al.enabled {
		return
	}

	attrs := mh.LogAuditAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	al.logger.Info("message_audit", args...)
}
