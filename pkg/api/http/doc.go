// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Event publication (blocking or fail-fast under backpressure)
//   - Publisher status and start/stop control
//   - Health checks
//   - Prometheus metrics
package http
