// Package instrumentation provides OpenTelemetry instrumentation for
// the meetbroker scheduling agent.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for negotiations, calendar commits, and Google API calls
//   - Distributed tracing for message handling and API calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Negotiation Metrics:
//   - coordination_messages_processed_total: Counter of handled messages by kind and result
//   - negotiations_total: Counter of finished negotiations by outcome
//   - negotiation_rounds: Histogram of rounds per finished negotiation
//   - active_sessions: Gauge of in-flight negotiation sessions
//   - calendar_commits_total: Counter of confirmed-slot calendar commits by result
//
// Poll Loop Metrics:
//   - poll_cycles_total: Counter of mailbox poll cycles by result
//   - poll_cycle_duration_seconds: Histogram of poll cycle durations
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Authentication Metrics:
//   - oauth_auth_total: Counter of OAuth authentication events by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - Coordination message handling (negotiation.<kind>)
//   - Google API calls (google.<service>.<operation>)
//   - OAuth token operations
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: meetbroker)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "meetbroker",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record a handled coordination message
//	recorder.RecordMessage(ctx, "schedule_proposal", "handled")
//
//	// Record a Google API operation
//	recorder.RecordGoogleAPIOperation(ctx, "calendar", "freebusy", "success", time.Since(start))
//
//	// Record a finished negotiation
//	recorder.RecordNegotiationOutcome(ctx, "confirmed", 2)
package instrumentation
