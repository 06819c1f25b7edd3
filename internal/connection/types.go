package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrPeerClosed    = errors.New("connection closed by peer")
	ErrAlreadyClosed = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// InboundMessage is a stream payload handed to the consumer of Manager.Messages.
type InboundMessage struct {
	Data       []byte    // Raw payload, uninterpreted
	Seq        uint64    // Delivery order across reconnects, starting at 1
	ReceivedAt time.Time // Local timestamp when the client read it
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ReconnectPolicy decides how long to wait before reconnect attempt n.
// With Multiplier <= 1 the delay is constant.
type ReconnectPolicy struct {
	Delay      time.Duration
	MaxDelay   time.Duration // Cap for the growing delay (0 = no cap)
	Multiplier float64
}

// Backoff returns the wait before the given attempt (1-based).
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	if p.Multiplier <= 1 || attempt <= 1 {
		return p.capped(p.Delay)
	}

	wait := float64(p.Delay)
	for i := 1; i < attempt; i++ {
		wait *= p.Multiplier
		if p.MaxDelay > 0 && wait >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return p.capped(time.Duration(wait))
}

func (p ReconnectPolicy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Origin            string          // Backend origin (e.g., https://ops.example.com)
	Path              string          // Stream path relative to the origin (e.g., /ws/dashboard)
	TokenParam        string          // Query parameter carrying the bearer token
	Reconnect         ReconnectPolicy // Wait between a lost connection and the next attempt
	HeartbeatInterval time.Duration   // Keepalive period while connected
	KeepaliveToken    string          // Payload sent on every heartbeat
	MessageBufferSize int             // Buffer size for output message channel
	StateBufferSize   int             // Buffer size for the state change channel
	Client            ClientConfig
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Path:       "/ws/dashboard",
		TokenParam: "token",
		Reconnect: ReconnectPolicy{
			Delay:      5 * time.Second,
			MaxDelay:   5 * time.Minute,
			Multiplier: 1,
		},
		HeartbeatInterval: 30 * time.Second,
		KeepaliveToken:    "ping",
		MessageBufferSize: 1000,
		StateBufferSize:   64,
		Client:            DefaultClientConfig(),
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State             State  `json:"state"`
	SessionID         string `json:"session_id,omitempty"`
	Connects          int64  `json:"connects"`
	ReconnectAttempts int64  `json:"reconnect_attempts"`
	MessagesReceived  int64  `json:"messages_received"`
	KeepalivesSent    int64  `json:"keepalives_sent"`
}
