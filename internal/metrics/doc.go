// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Live stream connection state, transitions, message and keepalive rates
//   - Reconnect delays
//   - Poll source fetch outcomes, durations and skipped ticks
//   - Router accept/reject counts and alert queue utilization
//   - Archive writer throughput
//
// A Collector registers everything on the registry it is given, so tests can
// use a private prometheus.Registry.
package metrics
