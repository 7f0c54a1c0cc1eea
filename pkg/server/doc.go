// Package server exposes the daemon's telemetry over HTTP.
//
// # Routes
//
//   - GET /metrics - Prometheus scrape endpoint (path configurable)
//   - GET /healthz - Liveness check (always 200 while the process runs)
//   - GET /readyz  - Readiness check (503 when the last backup failed or is stale)
//   - GET /version - Build information
//   - GET /status  - Scheduler state and the last recorded run
//
// # Middleware Chain
//
// Requests pass through the following middleware (innermost to outermost):
//  1. otelhttp: server span per request, scrapes excluded
//  2. Logging: method, path, status and latency
//  3. Recovery: recovers from panics and returns 500
//
// The server has no TLS or authentication and is meant to listen on a
// loopback or cluster-internal address.
package server
