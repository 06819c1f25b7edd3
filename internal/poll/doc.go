// Package poll implements Source, a periodic fetch engine.
//
// A Source:
//   - Fetches immediately on Start, then on a fixed interval
//   - Never runs two fetches at once: ticks that arrive while a fetch is in
//     flight are skipped, not queued
//   - Supports out-of-band Refresh without disturbing the schedule
//   - Discards results of fetches that outlive Stop or Close
//   - Optionally substitutes synthetic data for failed fetches (see package fallback)
//   - Exposes the latest outcome as a Result snapshot with staleness
package poll
