// Package model defines shared data types used across the ops dashboard.
//
// Types mirror the JSON bodies returned by the backend REST resources and the
// "data" payloads carried on the live event stream.
//
// Conventions:
//   - Timestamps: time.Time, RFC 3339 on the wire
//   - Rates: float64 fractions (0.0-1.0), never percentages
//   - IDs: opaque strings assigned by the backend
package model
