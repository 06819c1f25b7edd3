package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rickgao/scamwatch-ops/internal/auth"
)

// Observer receives connection lifecycle signals, typically for metrics.
// Methods are called from the manager's goroutines and must not block.
type Observer interface {
	StateChanged(change StateChange)
	MessageReceived()
	KeepaliveSent(err error)
	ReconnectScheduled(attempt int, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) StateChanged(StateChange)              {}
func (nopObserver) MessageReceived()                      {}
func (nopObserver) KeepaliveSent(error)                   {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the clock driving heartbeat and reconnect timers.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithClientFactory sets how a Client is created for each attempt.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) {
		if f != nil {
			m.newClient = f
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// Manager owns the single live stream connection: it connects, keeps the
// connection alive with a periodic keepalive, reconnects after a fixed delay
// when the connection is lost and hands every inbound payload, in order, to
// one consumer.
type Manager struct {
	cfg       ManagerConfig
	tokens    auth.TokenSource
	logger    *slog.Logger
	clock     clockwork.Clock
	newClient ClientFactory
	observer  Observer

	// Output channels
	messages chan InboundMessage
	states   chan StateChange

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	state     State
	client    Client // nil unless a connection is open
	sessionID string
	last      InboundMessage
	hasLast   bool
	started   bool
	closed    bool

	closeOnce sync.Once

	seq        atomic.Uint64
	connects   atomic.Int64
	reconnects atomic.Int64
	received   atomic.Int64
	keepalives atomic.Int64
}

// NewManager creates a Connection Manager in the connecting state.
// No I/O happens until Start.
func NewManager(cfg ManagerConfig, tokens auth.TokenSource, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultManagerConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.KeepaliveToken == "" {
		cfg.KeepaliveToken = defaults.KeepaliveToken
	}
	if cfg.TokenParam == "" {
		cfg.TokenParam = defaults.TokenParam
	}
	if cfg.Reconnect.Delay < 0 {
		cfg.Reconnect.Delay = 0
	}
	if cfg.MessageBufferSize < 0 {
		cfg.MessageBufferSize = 0
	}
	if cfg.StateBufferSize <= 0 {
		cfg.StateBufferSize = defaults.StateBufferSize
	}

	m := &Manager{
		cfg:       cfg,
		tokens:    tokens,
		logger:    logger.With("component", "connection"),
		clock:     clockwork.NewRealClock(),
		newClient: NewClient,
		observer:  nopObserver{},
		messages:  make(chan InboundMessage, cfg.MessageBufferSize),
		states:    make(chan StateChange, cfg.StateBufferSize),
		state:     StateConnecting,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start launches the connection loop. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	if m.started {
		return errors.New("connection manager already started")
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started",
		"origin", m.cfg.Origin,
		"path", m.cfg.Path,
		"heartbeat", m.cfg.HeartbeatInterval,
		"reconnect_delay", m.cfg.Reconnect.Delay,
	)

	return nil
}

// Close stops all timers, closes the transport and closes the Messages and
// States channels. When the stream was connected a final
// connected -> disconnected change is emitted first. Close is idempotent.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		cancel := m.cancel
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		m.wg.Wait()

		m.transition(EventClose)

		close(m.messages)
		close(m.states)

		m.logger.Info("connection manager stopped")
	})
	return nil
}

// Stop is Close bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		return ctx.Err()
	}
}

// Send writes payload to the open connection. It fails with ErrNotConnected
// unless the state is connected; nothing is queued or retried.
func (m *Manager) Send(payload []byte) error {
	m.mu.RLock()
	state, client := m.state, m.client
	m.mu.RUnlock()

	if state != StateConnected || client == nil {
		return ErrNotConnected
	}
	if err := client.Send(payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendJSON marshals v and sends it.
func (m *Manager) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return m.Send(data)
}

// Messages returns the inbound payload channel. It has a single consumer.
func (m *Manager) Messages() <-chan InboundMessage {
	return m.messages
}

// States returns the state change channel. Changes are dropped, with a
// warning, if the channel is full.
func (m *Manager) States() <-chan StateChange {
	return m.states
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastMessage returns the most recently received payload.
func (m *Manager) LastMessage() (InboundMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.hasLast
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	state, session := m.state, m.sessionID
	m.mu.RUnlock()

	return ManagerStats{
		State:             state,
		SessionID:         session,
		Connects:          m.connects.Load(),
		ReconnectAttempts: m.reconnects.Load(),
		MessagesReceived:  m.received.Load(),
		KeepalivesSent:    m.keepalives.Load(),
	}
}

// run connects, serves the connection until it ends, then waits the
// reconnect delay and tries again until the context is cancelled.
func (m *Manager) run() {
	defer m.wg.Done()

	attempt := 0
	for {
		opened, ev := m.connectAndServe()
		if m.ctx.Err() != nil {
			return
		}

		if opened {
			attempt = 0
		}
		attempt++
		delay := m.cfg.Reconnect.Backoff(attempt)

		// Arm the timer before announcing the loss so observers of the
		// change see a pending retry.
		timer := m.clock.NewTimer(delay)
		m.observer.ReconnectScheduled(attempt, delay)
		m.transition(ev)

		m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)

		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		m.reconnects.Add(1)
		m.transition(EventRetry)
	}
}

// connectAndServe makes one connection attempt and, if it opens, serves it
// until it ends. It reports whether the connection opened and the event that
// ended it.
func (m *Manager) connectAndServe() (bool, Event) {
	session := uuid.NewString()
	logger := m.logger.With("session", session)

	url, err := m.streamURL()
	if err != nil {
		logger.Warn("cannot resolve stream address", "error", err)
		return false, EventError
	}

	client := m.newClient(m.cfg.Client, logger)
	if err := client.Connect(m.ctx, url, nil); err != nil {
		client.Close()
		if m.ctx.Err() == nil {
			logger.Warn("connection attempt failed", "url", redactURL(url), "error", err)
		}
		return false, EventError
	}

	m.mu.Lock()
	m.client = client
	m.sessionID = session
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()
		client.Close()
	}()

	heartbeat := m.clock.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	m.connects.Add(1)
	m.transition(EventOpen)

	msgs := client.Messages()
	for {
		select {
		case <-m.ctx.Done():
			return true, EventClose

		case <-heartbeat.Chan():
			err := m.Send([]byte(m.cfg.KeepaliveToken))
			if err == nil {
				m.keepalives.Add(1)
			} else {
				logger.Debug("keepalive failed", "error", err)
			}
			m.observer.KeepaliveSent(err)

		case msg, ok := <-msgs:
			if !ok {
				err := client.Err()
				if errors.Is(err, ErrPeerClosed) {
					logger.Info("stream closed by server", "reason", err)
					return true, EventClose
				}
				logger.Warn("stream connection lost", "error", err)
				return true, EventError
			}
			if !m.deliver(msg) {
				return true, EventClose
			}
		}
	}
}

// streamURL reads the token and builds the address for one attempt.
func (m *Manager) streamURL() (string, error) {
	var token string
	if m.tokens != nil {
		tok, err := m.tokens.Token()
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		token = tok
	}
	return ResolveStreamURL(m.cfg.Origin, m.cfg.Path, m.cfg.TokenParam, token)
}

// deliver hands msg to the consumer, blocking until it is taken or the
// manager is closing.
func (m *Manager) deliver(msg TimestampedMessage) bool {
	in := InboundMessage{
		Data:       msg.Data,
		Seq:        m.seq.Add(1),
		ReceivedAt: msg.ReceivedAt,
	}

	m.mu.Lock()
	m.last = in
	m.hasLast = true
	m.mu.Unlock()

	m.received.Add(1)
	m.observer.MessageReceived()

	select {
	case m.messages <- in:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// transition applies ev and publishes the change. Invalid edges are ignored.
// Only the run goroutine and Close (after run has exited) call it, so
// changes are published in order.
func (m *Manager) transition(ev Event) bool {
	m.mu.Lock()
	from := m.state
	to, ok := Next(from, ev)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.state = to
	change := StateChange{From: from, To: to, At: m.clock.Now()}
	m.mu.Unlock()

	m.logger.Info("connection state changed", "from", from, "to", to, "event", ev)
	m.observer.StateChanged(change)

	select {
	case m.states <- change:
	default:
		m.logger.Warn("state channel full, dropping change", "from", from, "to", to)
	}
	return true
}
