// Package connection implements the live stream Connection Manager.
//
// The Connection Manager:
//   - Holds one WebSocket connection to the dashboard stream
//   - Derives the stream address from the backend origin (https -> wss, http -> ws)
//     and a bearer token read fresh for every attempt
//   - Tracks the connecting/connected/disconnected/failed state machine
//   - Sends a keepalive token on a fixed heartbeat while connected
//   - Reconnects after a fixed delay, indefinitely, until closed
//   - Delivers every inbound payload once, in receipt order, to a single consumer
package connection
