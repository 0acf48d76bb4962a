// Package server provides the dedicated metrics endpoint for the
// meetbroker agent.
//
// The metrics server runs on its own port, isolated from any
// application traffic, and exposes:
//   - /metrics: Prometheus metrics for scraping
//   - /healthz: a liveness probe for the agent process
//
// Keeping metrics on a dedicated listener prevents unauthorized access
// to operational metrics when the agent runs in a shared network.
package server
