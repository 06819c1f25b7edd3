package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAPI(t *testing.T, d *Dashboard) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestHandler_Health(t *testing.T) {
	backend := newFakeBackend(t)
	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})
	require.NoError(t, d.Start(context.Background()))
	server := startAPI(t, d)

	require.Eventually(t, func() bool {
		return d.Snapshot().Connection.State.String() == "connected"
	}, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Status     string                     `json:"status"`
		Instance   string                     `json:"instance"`
		Components map[string]json.RawMessage `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test-dash", body.Instance)
	assert.JSONEq(t, `"connected"`, string(body.Components["stream"]))
	assert.Contains(t, body.Components, "overview")
	assert.NotContains(t, body.Components, "archive")
}

func TestHandler_HealthDegradedWhileConnecting(t *testing.T) {
	d, _ := newTestDashboard(t, testConfig("http://localhost:1"), Deps{})
	server := startAPI(t, d)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
}

func TestHandler_Snapshot(t *testing.T) {
	backend := newFakeBackend(t)
	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})
	require.NoError(t, d.Start(context.Background()))
	server := startAPI(t, d)

	require.Eventually(t, func() bool {
		return d.Snapshot().Overview.Data != nil
	}, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get(server.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	for _, key := range []string{"connection", "overview", "metrics", "health", "active_alerts", "recent_alerts"} {
		assert.Contains(t, raw, key)
	}

	var overview map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["overview"], &overview))
	for _, key := range []string{"data", "is_loading", "is_stale", "using_fallback", "fetched_at"} {
		assert.Contains(t, overview, key)
	}
	assert.JSONEq(t, `[]`, string(raw["active_alerts"]))
}

func TestHandler_Refresh(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(backend.URL)
	cfg.HTTP.RefreshRate = 0.001
	cfg.HTTP.RefreshBurst = 2

	d, _ := newTestDashboard(t, cfg, Deps{})
	server := startAPI(t, d)

	post := func(path string) (*http.Response, map[string]any) {
		t.Helper()
		resp, err := http.Post(server.URL+path, "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		data, _ := io.ReadAll(resp.Body)
		json.Unmarshal(data, &body)
		return resp, body
	}

	resp, body := post("/api/refresh/overview")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "overview", body["source"])

	resp, _ = post("/api/refresh/nonsense")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = post("/api/refresh/all")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Burst of two used up.
	resp, body = post("/api/refresh/metrics")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, "refresh rate limit exceeded", body["error"])
}

func TestHandler_RefreshMethodNotAllowed(t *testing.T) {
	d, _ := newTestDashboard(t, testConfig("http://localhost:1"), Deps{})
	server := startAPI(t, d)

	resp, err := http.Get(server.URL + "/api/refresh/overview")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_Metrics(t *testing.T) {
	d, _ := newTestDashboard(t, testConfig("http://localhost:1"), Deps{})
	server := startAPI(t, d)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "opsdash_build_info")
	assert.Contains(t, string(data), `opsdash_stream_state{state="connecting"} 1`)
}

func TestHandler_PushSnapshot(t *testing.T) {
	backend := newFakeBackend(t)
	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})
	server := startAPI(t, d)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/snapshot"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first View
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "test-dash", first.Instance)
	assert.Nil(t, first.Overview.Data)

	require.NoError(t, d.Start(context.Background()))

	// Pushes follow every change; wait for one carrying overview data.
	for {
		var v View
		require.NoError(t, conn.ReadJSON(&v))
		if v.Overview.Data != nil {
			assert.Equal(t, int64(1200), v.Overview.Data.TotalMessages)
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	// Stop closes subscriptions, which ends the push with a close frame.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err = %v", err)
			break
		}
	}
}
