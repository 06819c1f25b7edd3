package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/version"
)

const (
	pushWriteTimeout = 5 * time.Second
	pushPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Handler returns the HTTP API.
func (d *Dashboard) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(d.logRequests)

	r.HandleFunc("/health", d.handleHealth).Methods(http.MethodGet)
	r.Handle(d.cfg.Metrics.Path, promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ws/snapshot", d.handlePush).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/snapshot", d.handleSnapshot).Methods(http.MethodGet)
	apiRouter.HandleFunc("/refresh/{source}", d.handleRefresh).Methods(http.MethodPost)

	return r
}

func (d *Dashboard) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		d.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := d.manager.State()

	health := struct {
		Status     string         `json:"status"`
		Instance   string         `json:"instance"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Instance:   d.cfg.Instance.ID,
		Version:    version.Version,
		Components: make(map[string]any),
	}

	health.Components["stream"] = state.String()
	if state != connection.StateConnected {
		health.Status = "degraded"
	}

	for _, name := range sourceOrder {
		src := d.sources[name]
		health.Components[name] = map[string]bool{
			"running": src.Running(),
			"stale":   src.Stale(),
		}
	}

	if d.writer != nil {
		health.Components["archive"] = d.writer.Stats()
	}

	writeJSON(w, http.StatusOK, health, d.logger)
}

func (d *Dashboard) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Snapshot(), d.logger)
}

func (d *Dashboard) handleRefresh(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["source"]
	if _, ok := d.sources[name]; !ok && name != "all" {
		writeError(w, http.StatusNotFound, "unknown source: "+name, d.logger)
		return
	}

	if !d.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded", d.logger)
		return
	}

	started, err := d.Refresh(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), d.logger)
		return
	}

	d.logger.Info("manual refresh", "source", name, "started", started)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"source":  name,
		"started": started,
	}, d.logger)
}

// handlePush upgrades to a websocket and sends the View on connect and after
// every change until either side goes away.
func (d *Dashboard) handlePush(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	changes, unsubscribe := d.Subscribe()
	defer unsubscribe()

	// Reader: the client sends nothing we act on, but reading surfaces its close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pushPingInterval)
	defer ping.Stop()

	send := func() bool {
		conn.SetWriteDeadline(time.Now().Add(pushWriteTimeout))
		if err := conn.WriteJSON(d.Snapshot()); err != nil {
			d.logger.Debug("snapshot push failed", "error", err)
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-gone:
			return
		case _, ok := <-changes:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "dashboard stopping"),
					time.Now().Add(pushWriteTimeout))
				return
			}
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
