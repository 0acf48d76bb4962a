package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrKind      = "kind"
	attrResult    = "result"
	attrOutcome   = "outcome"
	attrOperation = "operation"
	attrService   = "service"
	attrStatus    = "status"
	attrAccount   = "account"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// Negotiation metrics
	messagesProcessedTotal metric.Int64Counter
	negotiationsTotal      metric.Int64Counter
	negotiationRounds      metric.Int64Histogram
	activeSessions         metric.Int64UpDownCounter
	commitsTotal           metric.Int64Counter

	// Poll loop metrics
	pollCyclesTotal   metric.Int64Counter
	pollCycleDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// Negotiation metrics
	m.messagesProcessedTotal, err = meter.Int64Counter(
		"coordination_messages_processed_total",
		metric.WithDescription("Total number of coordination messages processed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordination_messages_processed_total counter: %w", err)
	}

	m.negotiationsTotal, err = meter.Int64Counter(
		"negotiations_total",
		metric.WithDescription("Total number of negotiations reaching a terminal state"),
		metric.WithUnit("{negotiation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create negotiations_total counter: %w", err)
	}

	m.negotiationRounds, err = meter.Int64Histogram(
		"negotiation_rounds",
		metric.WithDescription("Rounds taken per finished negotiation"),
		metric.WithUnit("{round}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create negotiation_rounds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of in-flight negotiation sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	m.commitsTotal, err = meter.Int64Counter(
		"calendar_commits_total",
		metric.WithDescription("Total number of confirmed-slot calendar commits"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_commits_total counter: %w", err)
	}

	// Poll loop metrics
	m.pollCyclesTotal, err = meter.Int64Counter(
		"poll_cycles_total",
		metric.WithDescription("Total number of mailbox poll cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll_cycles_total counter: %w", err)
	}

	m.pollCycleDuration, err = meter.Float64Histogram(
		"poll_cycle_duration_seconds",
		metric.WithDescription("Mailbox poll cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll_cycle_duration_seconds histogram: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	return m, nil
}

// RecordMessage records one processed coordination message.
//
// Parameters:
//   - kind: Protocol message kind (schedule_request, schedule_proposal, ...)
//   - result: Processing result ("handled", "stale", "clarified", "skipped", "error")
func (m *Metrics) RecordMessage(ctx context.Context, kind, result string) {
	if m.messagesProcessedTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrKind, kind),
		attribute.String(attrResult, result),
	}

	m.messagesProcessedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNegotiationOutcome records a negotiation reaching a terminal
// state together with the number of rounds it took.
// Outcome should be one of: "confirmed", "rejected", "expired", "failed"
func (m *Metrics) RecordNegotiationOutcome(ctx context.Context, outcome string, rounds int) {
	if m.negotiationsTotal == nil || m.negotiationRounds == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
	}

	m.negotiationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.negotiationRounds.Record(ctx, int64(rounds), metric.WithAttributes(attrs...))
}

// RecordCommit records a calendar commit attempt for a confirmed slot.
// Result should be one of: "created", "duplicate", "error"
func (m *Metrics) RecordCommit(ctx context.Context, result string) {
	if m.commitsTotal == nil {
		return // Instrumentation not initialized
	}

	m.commitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordPollCycle records one mailbox poll cycle with result and duration.
// Result should be one of: "success" or "error".
func (m *Metrics) RecordPollCycle(ctx context.Context, result string, duration time.Duration) {
	if m.pollCyclesTotal == nil || m.pollCycleDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.pollCyclesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pollCycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail, calendar)
//   - operation: Operation type (list, get, create, send, archive, freebusy, ...)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an OAuth authentication attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "expired"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMessageWithAccount records a processed coordination message with
// the mailbox account attached.
// This is the detailed version that includes account information when detailedLabels is enabled.
func (m *Metrics) RecordMessageWithAccount(ctx context.Context, kind, result, account string) {
	if m.messagesProcessedTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrKind, kind),
		attribute.String(attrResult, result),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.messagesProcessedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, -1)
}
