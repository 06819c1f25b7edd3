// Package database provides connection pool management for the alert archive.
//
// The archive is a single PostgreSQL (optionally TimescaleDB) database holding
// the dashboard_alerts table. Only the archive writer talks to it; every live
// dashboard view is served from memory.
package database
