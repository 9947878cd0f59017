package livehttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spotpilot/internal/account"
	"spotpilot/internal/metrics"
	"spotpilot/internal/registry"
	"spotpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeStatus struct {
	marks map[string]float64
}

func (f *fakeStatus) Stats() account.Stats {
	return account.Stats{Uptime: 90 * time.Second, Balance: 250, Equity: 260, Trades: 3, Wins: 2, Attempts: 5}
}

func (f *fakeStatus) Positions(marks map[string]float64) []account.Position {
	f.marks = marks
	return []account.Position{{Symbol: "BTCUSDT", Qty: 0.1, AvgCost: 100, Mark: marks["BTCUSDT"]}}
}

type fakeJournal struct {
	symbol string
	limit  int
	err    error
}

func (f *fakeJournal) Recent(_ context.Context, symbol string, limit int) ([]store.TradeRecord, error) {
	f.symbol, f.limit = symbol, limit
	if f.err != nil {
		return nil, f.err
	}
	return []store.TradeRecord{{AttemptID: "a1", Symbol: "BTCUSDT", Action: "BUY", Status: "ok"}}, nil
}

func (f *fakeJournal) Summaries(_ context.Context, limit int) ([]store.DailySummary, error) {
	f.limit = limit
	return []store.DailySummary{{Day: "2024-06-04", Attempts: 4, Trades: 2}}, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewServerRequiresAddr(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealthAndMetricsOnly(t *testing.T) {
	sink := metrics.New()
	srv, err := NewServer(ServerConfig{Addr: ":0", Metrics: sink.Handler(), Observer: sink})
	require.NoError(t, err)
	h := srv.Handler()

	w := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/status").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)

	w = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
	// 未匹配的路径归入同一标签。
	assert.Contains(t, body, `http_requests_total{method="GET",path="unmatched",status="404"} 2`)
}

func TestStatusAndRegistryRoutes(t *testing.T) {
	reg := registry.New(registry.Limits{MinSpacing: time.Minute, MaxTradesPerDay: 10})
	now := time.Now()
	reg.MarkTrade("BTCUSDT", now)
	reg.AddExposure("BTCUSDT", 12.5)
	status := &fakeStatus{}
	srv, err := NewServer(ServerConfig{
		Addr:     ":0",
		Status:   status,
		Registry: reg,
		Symbols:  func() []string { return []string{"BTCUSDT", "ETHUSDT"} },
		Marks:    func() map[string]float64 { return map[string]float64{"BTCUSDT": 110} },
	})
	require.NoError(t, err)
	h := srv.Handler()

	w := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, int64(90), gjson.Get(body, "uptime_sec").Int())
	assert.Equal(t, 260.0, gjson.Get(body, "equity").Float())
	assert.Equal(t, 110.0, gjson.Get(body, "positions.0.mark").Float())
	assert.Equal(t, 12.5, gjson.Get(body, "total_exposure").Float())
	assert.False(t, gjson.Get(body, "halted").Bool())
	assert.Equal(t, "ETHUSDT", gjson.Get(body, "symbols.1").String())
	assert.Equal(t, 110.0, status.marks["BTCUSDT"])

	w = get(t, h, "/api/registry")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BTCUSDT", gjson.Get(w.Body.String(), "symbols.0.symbol").String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "symbols.0.trades_today").Int())
	assert.Greater(t, gjson.Get(w.Body.String(), "symbols.0.cooldown_remaining_sec").Float(), 0.0)

	w = get(t, h, "/api/registry/btcusdt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12.5, gjson.Get(w.Body.String(), "exposure_quote").Float())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/registry/DOGEUSDT").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/trades").Code)
}

func TestJournalRoutes(t *testing.T) {
	j := &fakeJournal{}
	srv, err := NewServer(ServerConfig{Addr: ":0", Journal: j})
	require.NoError(t, err)
	h := srv.Handler()

	w := get(t, h, "/api/trades?symbol=BTCUSDT&limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BTCUSDT", j.symbol)
	assert.Equal(t, 5, j.limit)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "count").Int())
	assert.Equal(t, "a1", gjson.Get(w.Body.String(), "trades.0.attempt_id").String())

	w = get(t, h, "/api/summaries")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, j.limit)
	assert.Equal(t, "2024-06-04", gjson.Get(w.Body.String(), "summaries.0.day").String())

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/status").Code)

	j.err = errors.New("disk full")
	w = get(t, h, "/api/trades")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "disk full", gjson.Get(w.Body.String(), "error").String())
}

func TestStartStopsOnCancel(t *testing.T) {
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}
