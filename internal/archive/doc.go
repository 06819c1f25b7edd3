// Package archive persists stream alerts to the dashboard_alerts table.
//
// AlertWriter drains the router's alert queue, accumulates rows and flushes
// them with a single pgx batch when the batch is full or the flush interval
// elapses. Inserts use ON CONFLICT (id) DO NOTHING, so replays of the same
// alert after a reconnect are counted as conflicts rather than duplicated.
package archive
