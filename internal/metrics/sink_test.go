package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"spotpilot/internal/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, s *Sink) string {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSinkScrapeCounters(t *testing.T) {
	s := New()
	s.ObserveOrder("BTCUSDT", types.SideBuy, types.StatusOK)
	s.ObserveOrder("BTCUSDT", types.SideBuy, types.StatusOK)
	s.ObserveOrder("BTCUSDT", types.SideSell, types.StatusNetworkError)
	s.IncRejection(types.ReasonCooldown)
	s.IncRejection(types.ReasonMinNotional)
	s.IncException("TimeoutError")
	s.ObserveExecution(123 * time.Millisecond)

	text := scrape(t, s)
	assert.Contains(t, text, `orders_total{side="BUY",status="ok",symbol="BTCUSDT"} 2`)
	assert.Contains(t, text, `orders_total{side="SELL",status="network-error",symbol="BTCUSDT"} 1`)
	assert.Contains(t, text, `order_rejections_total{reason="cooldown"} 1`)
	assert.Contains(t, text, `order_rejections_total{reason="min_notional"} 1`)
	assert.Contains(t, text, `exceptions_total{type="TimeoutError"} 1`)
	assert.Contains(t, text, `order_execution_seconds_bucket{le="0.1"} 0`)
	assert.Contains(t, text, `order_execution_seconds_bucket{le="0.2"} 1`)
	assert.Contains(t, text, `order_execution_seconds_count 1`)
}

func TestSinkRegistriesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.IncException("TimeoutError")
	b.IncException("")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.exceptionsTotal.WithLabelValues("TimeoutError")))
	assert.Equal(t, 0, testutil.CollectAndCount(b.exceptionsTotal))
}

func TestSinkGauges(t *testing.T) {
	s := New()
	s.SetExposure("ETHUSDT", 42.5)
	s.SetHalted(true)
	assert.Equal(t, 42.5, testutil.ToFloat64(s.exposure.WithLabelValues("ETHUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.haltLatched))
	s.SetHalted(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.haltLatched))
}
