// Package codec translates between structured negotiation events and
// the email bodies exchanged by scheduling agents.
//
// Outbound messages carry a human-readable summary followed by a
// marker-delimited machine section holding the base64-encoded JSON
// event, so a counterpart agent can decode losslessly while the thread
// stays readable to people. Inbound decoding prefers the machine
// section and falls back to a tolerant plain-text parse; anything
// ambiguous yields a DecodeFailure with a reason instead of a guess.
// The state machine treats DecodeFailure as a no-op that triggers a
// clarification reply, never as a protocol error.
package codec
