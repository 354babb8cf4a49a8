package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/di"
	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creator = common.HexToAddress("0xc001")

func newTestServer(t *testing.T, env map[string]string) (*Server, *di.Container, *config.Config) {
	t.Helper()
	t.Setenv("LAUNCHPAD_DATA_DIR", t.TempDir())
	t.Setenv("NETWORK_FILE", "")
	t.Setenv("DEV_MODE", "true")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	container, _, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	srv := New(Config{Log: zerolog.Nop(), Config: cfg, Container: container})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, container, cfg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func launchBody(cfg *config.Config) string {
	venue := cfg.Network.Venues[0]
	return `{"creator":"` + creator.Hex() + `","name":"Agent","symbol":"AGT",` +
		`"initial_purchase":"` + domain.E18(2).String() + `",` +
		`"dex_configs":[{"venue_ref":"` + venue.Address + `","venue_kind":"` + string(venue.Kind) + `","weight_bps":10000}],` +
		`"auto_approve":true}`
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "launchpad", body["service"])
}

func TestServer_LaunchThroughAPI(t *testing.T) {
	srv, c, cfg := newTestServer(t, nil)
	require.NoError(t, c.Host.Execute(func() error {
		return c.BaseToken.Transfer(cfg.Accounts.Treasury, creator, domain.E18(100))
	}))

	w := do(t, srv.Handler(), http.MethodPost, "/api/launches", launchBody(cfg))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var launched map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &launched))
	token, _ := launched["token"].(string)
	require.True(t, common.IsHexAddress(token))

	w = do(t, srv.Handler(), http.MethodGet, "/api/launches?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	w = do(t, srv.Handler(), http.MethodGet, "/api/trades?token="+token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var trades []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	assert.Len(t, trades, 1)

	w = do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "launchpad_launch_launches_total 1")
}

func TestServer_RejectedLaunchMapsToClientError(t *testing.T) {
	srv, _, cfg := newTestServer(t, nil)

	// The creator holds no base, so the first buy cannot be funded
	w := do(t, srv.Handler(), http.MethodPost, "/api/launches", launchBody(cfg))
	assert.GreaterOrEqual(t, w.Code, 400)
	assert.Less(t, w.Code, 500)

	w = do(t, srv.Handler(), http.MethodPost, "/api/launches", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Jobs(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv.Handler(), http.MethodGet, "/api/system/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var jobs JobsStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	assert.Equal(t, 3, jobs.TotalJobs)

	w = do(t, srv.Handler(), http.MethodPost, "/api/system/jobs/reconcile_reserves/run", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv.Handler(), http.MethodPost, "/api/system/jobs/nope/run", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv.Handler(), http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 0, status.Pools)

	w = do(t, srv.Handler(), http.MethodGet, "/api/system/database", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"ledger"`)
}

func TestServer_WritesAreRateLimited(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]string{"RATE_LIMIT_RPS": "0.001", "RATE_LIMIT_BURST": "1"})

	w := do(t, srv.Handler(), http.MethodPost, "/api/system/jobs/reconcile_reserves/run", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, srv.Handler(), http.MethodPost, "/api/system/jobs/reconcile_reserves/run", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are never limited
	for i := 0; i < 3; i++ {
		w = do(t, srv.Handler(), http.MethodGet, "/api/system/jobs", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestEventsStream_FiltersByType(t *testing.T) {
	srv, c, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types="+string(events.ReserveDriftDetected), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	messages := make(chan map[string]interface{}, 10)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var msg map[string]interface{}
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg) == nil {
				messages <- msg
			}
		}
		close(messages)
	}()

	first := <-messages
	require.Equal(t, "connected", first["type"])

	c.EventBus.Emit(events.TradeExecuted, "test", map[string]interface{}{"trade_id": "skipped"})
	c.EventBus.Emit(events.ReserveDriftDetected, "test", map[string]interface{}{"token": "0x01"})

	select {
	case msg := <-messages:
		assert.Equal(t, string(events.ReserveDriftDetected), msg["type"])
		assert.Equal(t, "test", msg["module"])
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestEventsStream_RejectsBadReplay(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/api/events/stream?replay=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
