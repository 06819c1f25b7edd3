// Package dashboard composes the live-data layer of the ops dashboard.
//
// A Dashboard owns one stream connection manager, the router that turns stream
// payloads into views, three poll sources (overview, metrics, health) with
// synthetic fallbacks, and the optional alert archive writer. It exposes the
// combined state as a JSON View over a small HTTP API:
//
//	GET  /health                 process and stream status
//	GET  /api/snapshot           the current View
//	POST /api/refresh/{source}   out-of-band fetch (overview, metrics, health, all)
//	GET  /ws/snapshot            View pushed on every change
//	GET  /metrics                Prometheus exposition
//
// The package is headless: it renders nothing and leaves presentation to
// whatever consumes the View.
package dashboard
