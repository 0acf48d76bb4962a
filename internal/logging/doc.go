// Package logging provides slog helpers with consistent attribute
// naming for the negotiation domain. Email addresses are anonymized
// before logging so that log entries can be correlated without
// exposing PII.
package logging
