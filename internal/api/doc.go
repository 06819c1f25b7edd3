// Package api provides the REST client for the dashboard backend.
//
// Resources (relative to the backend origin):
//   - GET /api/dashboard/overview  headline counters
//   - GET /api/dashboard/metrics   throughput and latency sample
//   - GET /api/health              per-service health
//   - GET /api/alerts/active       unacknowledged alerts
//
// Requests carry "Authorization: Bearer <token>" when a token is available and
// are retried with jittered exponential backoff on 5xx and 429 responses.
package api
