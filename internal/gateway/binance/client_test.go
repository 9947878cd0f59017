package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/outcome"
	"spotpilot/internal/pkg/circuit"
	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", APISecret: "s", RequestsPerSec: 1000, BreakerThreshold: 2, BreakerCooldown: time.Hour})
	require.NoError(t, err)
	return c
}

func TestMarketDataEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"100.50"}]`))
		case "/api/v3/depth":
			_, _ = w.Write([]byte(`{"lastUpdateId":1,"bids":[["100.4","2.0"]],"asks":[["100.6","1.5"]]}`))
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","filters":[
				{"filterType":"PRICE_FILTER","tickSize":"0.01000000"},
				{"filterType":"LOT_SIZE","stepSize":"0.00001000"},
				{"filterType":"NOTIONAL","minNotional":"5.00000000"}]}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	price, err := c.LastPrice(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 100.5, price)

	book, err := c.OrderBook(ctx, "BTCUSDT", 5)
	require.NoError(t, err)
	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.4, bid.Price)
	assert.Equal(t, 1.5, book.Asks[0].Qty)

	rules, err := c.SymbolInfo(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.01, rules.TickSize)
	assert.Equal(t, 0.00001, rules.StepSize)
	assert.Equal(t, 5.0, rules.MinNotional)
	assert.Equal(t, "BTC", rules.BaseAsset)
}

func TestPlaceMarketOrderParsesFills(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "MARKET", r.Form.Get("type"))
		assert.Equal(t, "0.10000", r.Form.Get("quantity"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"abc","transactTime":1,
			"executedQty":"0.10000","cummulativeQuoteQty":"10.01","status":"FILLED","type":"MARKET","side":"BUY",
			"fills":[{"price":"100.1","qty":"0.1","commission":"0.0001","commissionAsset":"BTC","tradeId":7}]}`))
	})
	ack, err := c.PlaceMarketOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 0.1,
		Rules: types.SymbolRules{StepSize: 0.00001, TickSize: 0.01},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", ack.OrderID)
	assert.Equal(t, exchange.OrderFilled, ack.Status)
	assert.Equal(t, types.SideBuy, ack.Side)
	require.Len(t, ack.Fills, 1)
	assert.Equal(t, "BTC", ack.Fills[0].CommissionAsset)
	assert.InDelta(t, 10.01, ack.CumQuote, 1e-9)
}

func TestAPIErrorBecomesExchangeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`))
	})
	_, err := c.PlaceMarketOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 1})
	var exErr *outcome.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, int64(-1013), exErr.Code)
	assert.Equal(t, circuit.StateClosed, c.Breaker().State())
}

func TestTimeoutsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
	})
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := c.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 1})
		cancel()
		var netErr *outcome.NetworkError
		require.ErrorAs(t, err, &netErr)
	}
	assert.Equal(t, circuit.StateOpen, c.Breaker().State())

	before := hits.Load()
	_, err := c.PlaceMarketOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 1})
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, before, hits.Load())
}

func TestQueryOrderRejectsBadID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.QueryOrder(context.Background(), "BTCUSDT", "not-a-number")
	var ruleErr *outcome.RuleViolationError
	assert.ErrorAs(t, err, &ruleErr)
}
