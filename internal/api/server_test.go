package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tycoon/internal/config"
	"tycoon/internal/economy"
	"tycoon/internal/game"
	"tycoon/internal/metrics"
	"tycoon/internal/session"
)

func newTestServer(t *testing.T, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New()
	require.NoError(t, m.Register(reg))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.NewRegistry(session.Options{
		Engine:  game.NewEngine(economy.MustDefault(), logger),
		Logger:  logger,
		Metrics: m,
	})
	srv := New(cfg, logger, sessions, reg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func openSlot(t *testing.T, base, slot string) string {
	t.Helper()
	var view sessionView
	status := doJSON(t, http.MethodPost, base+"/v1/sessions", map[string]string{"slot": slot}, &view)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, status)
	require.NotEmpty(t, view.Session)
	return view.Session
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{RequestTimeout: 5 * time.Second})

	var first sessionView
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"slot": "alpha"}, &first)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, first.Opened)
	assert.Equal(t, "new game", first.Opened.Notice)

	var again sessionView
	status = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"slot": "alpha"}, &again)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.Session, again.Session)

	var resp session.Response
	status = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+first.Session+"/commands",
		session.Command{Type: session.TypeBuy, BusinessID: "lemonade-stand", Bulk: "max"}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.Equal(t, 4, resp.Result.Quantity)
	assert.NotEmpty(t, resp.ID, "request id fills a missing command id")

	var view sessionView
	status = doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/"+first.Session, nil, &view)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, view.Snapshot)
	assert.Equal(t, 4, view.Snapshot.State.Businesses["lemonade-stand"].Amount)

	status = doJSON(t, http.MethodDelete, ts.URL+"/v1/sessions/"+first.Session, nil, nil)
	assert.Equal(t, http.StatusNoContent, status)

	var errBody map[string]string
	status = doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/"+first.Session, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errBody["error"], "not found")
}

func TestCommandErrorStatus(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	id := openSlot(t, ts.URL, "beta")

	cases := []struct {
		name   string
		cmd    session.Command
		status int
	}{
		{"unknown type", session.Command{Type: "DANCE"}, http.StatusBadRequest},
		{"bad bulk", session.Command{Type: session.TypeBuy, BusinessID: "lemonade-stand", Bulk: "0"}, http.StatusBadRequest},
		{"unknown business", session.Command{Type: session.TypeBuy, BusinessID: "moon-base"}, http.StatusNotFound},
		{"failed purchase is not an error", session.Command{Type: session.TypeManager, ManagerID: "lemonade-stand-manager"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp session.Response
			status := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/commands", tc.cmd, &resp)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.status != http.StatusOK, resp.Error != "")
		})
	}

	var errBody map[string]string
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"slot": "../etc"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/nope/commands", session.Command{Type: session.TypeTick}, &errBody)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]any{"slot": "x", "extra": 1}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	id := openSlot(t, ts.URL, "gamma")
	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/commands", session.Command{Type: session.TypeTick}, nil)

	var health map[string]any
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &health))
	assert.Equal(t, true, health["ok"])
	assert.EqualValues(t, 1, health["sessions"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tycoon_session_commands_total{command="TICK",status="success"} 1`)
	assert.Contains(t, string(body), "tycoon_session_open 1")
}

func wsURL(base, id string) string {
	return "ws" + strings.TrimPrefix(base, "http") + "/v1/sessions/" + id + "/ws"
}

func TestWebsocketCommandsAndTicks(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{WSRate: 100, WSBurst: 10})
	id := openSlot(t, ts.URL, "delta")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts.URL, id), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, session.Command{ID: "b1", Type: session.TypeBuy, BusinessID: "lemonade-stand"}))
	var resp session.Response
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	assert.Equal(t, "b1", resp.ID)
	assert.True(t, resp.Result.Success)

	require.NoError(t, wsjson.Write(ctx, conn, session.Command{ID: "s1", Type: session.TypeStart, EveryMs: 10}))
	sawStart, sawTick := false, false
	for !(sawStart && sawTick) {
		var msg session.Response
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		switch msg.Type {
		case session.TypeStart:
			sawStart = true
		case session.TypeTick:
			sawTick = true
			require.NotNil(t, msg.Snapshot)
		}
	}

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	for {
		var msg session.Response
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == session.TypeTick {
			continue
		}
		assert.Equal(t, "malformed command", msg.Error)
		break
	}
	assert.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestWebsocketRateLimit(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{WSRate: 0.001, WSBurst: 1})
	id := openSlot(t, ts.URL, "epsilon")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts.URL, id), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	for i := 0; i < 2; i++ {
		require.NoError(t, wsjson.Write(ctx, conn, session.Command{Type: session.TypeTick}))
	}
	var first, second session.Response
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Empty(t, first.Error)
	assert.Equal(t, errRateLimited.Error(), second.Error)
}

func TestWebsocketUnknownSession(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL(ts.URL, "missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
