package paper

import (
	"context"
	"errors"
	"testing"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/outcome"
	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange() *Exchange {
	ex := New(Config{QuoteAsset: "USDT", FeeRate: 0.001, Balances: map[string]float64{"usdt": 1000}}, nil)
	ex.SetPrice("BTCUSDT", 100)
	ex.SetBook("BTCUSDT", types.OrderBook{
		Bids: []types.Level{{Price: 99.9, Qty: 1}, {Price: 99.8, Qty: 2}},
		Asks: []types.Level{{Price: 100.1, Qty: 1}, {Price: 100.2, Qty: 2}},
	})
	return ex
}

func TestMarketBuyWalksBook(t *testing.T) {
	ex := newTestExchange()
	ctx := context.Background()

	ack, err := ex.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 1.5})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderFilled, ack.Status)
	assert.InDelta(t, 1.5, ack.ExecutedQty, 1e-9)
	assert.InDelta(t, 100.1+0.5*100.2, ack.CumQuote, 1e-9)
	require.Len(t, ack.Fills, 2)
	assert.Equal(t, "USDT", ack.Fills[0].CommissionAsset)
	assert.NotEmpty(t, ack.OrderID)

	quote, err := ex.FreeBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1000-ack.CumQuote*1.001, quote, 1e-9)
	base, err := ex.FreeBalance(ctx, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, base, 1e-9)
}

func TestMarketSellNeedsBase(t *testing.T) {
	ex := newTestExchange()
	_, err := ex.PlaceMarketOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideSell, Qty: 1})
	var exErr *outcome.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, int64(-2010), exErr.Code)
}

func TestMarketFallsBackToLastPrice(t *testing.T) {
	ex := New(Config{FeeRate: 0, Balances: map[string]float64{"USDT": 100}}, nil)
	ex.SetPrice("SUIUSDT", 1)
	ack, err := ex.PlaceMarketOrder(context.Background(), exchange.OrderRequest{Symbol: "SUIUSDT", Side: types.SideBuy, Qty: 10})
	require.NoError(t, err)
	assert.InDelta(t, 10, ack.CumQuote, 1e-9)
}

func TestLimitOrderRestsThenFills(t *testing.T) {
	ex := newTestExchange()
	ctx := context.Background()

	ack, err := ex.PlaceLimitOrder(ctx, exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 1, Price: 99, TimeInForce: types.TimeInForceGTC,
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderNew, ack.Status)
	assert.Equal(t, 1, ex.OpenOrders("BTCUSDT"))

	ex.SetBook("BTCUSDT", types.OrderBook{Asks: []types.Level{{Price: 98.9, Qty: 0.4}}})
	got, err := ex.QueryOrder(ctx, "BTCUSDT", ack.OrderID)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderPartiallyFilled, got.Status)
	assert.InDelta(t, 0.4, got.ExecutedQty, 1e-9)

	canceled, err := ex.CancelOrder(ctx, "BTCUSDT", ack.OrderID)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderCanceled, canceled.Status)
	assert.Equal(t, 0, ex.OpenOrders("BTCUSDT"))
}

func TestLimitIOCExpiresRemainder(t *testing.T) {
	ex := newTestExchange()
	ack, err := ex.PlaceLimitOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 2, Price: 100.1, TimeInForce: types.TimeInForceIOC,
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderExpired, ack.Status)
	assert.InDelta(t, 1, ack.ExecutedQty, 1e-9)
	assert.Equal(t, 0, ex.OpenOrders("BTCUSDT"))
}

func TestPostOnlyRejectsMarketableLimit(t *testing.T) {
	ex := newTestExchange()
	_, err := ex.PlaceLimitOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 1, Price: 100.5, PostOnly: true, TimeInForce: types.TimeInForceGTC,
	})
	var exErr *outcome.ExchangeError
	assert.ErrorAs(t, err, &exErr)
}

func TestFailureInjection(t *testing.T) {
	ex := newTestExchange()
	boom := &outcome.NetworkError{Op: "place", Err: errors.New("i/o timeout"), Timeout: true}
	ex.FailNext("place", boom)

	_, err := ex.PlaceMarketOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 0.1})
	assert.ErrorIs(t, err, boom)

	_, err = ex.PlaceMarketOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 0.1})
	assert.NoError(t, err)
}

func TestOrderBookDepthAndSorting(t *testing.T) {
	ex := New(Config{}, nil)
	ex.SetBook("ETHUSDT", types.OrderBook{
		Bids: []types.Level{{Price: 9, Qty: 1}, {Price: 10, Qty: 1}, {Price: 8, Qty: 1}},
		Asks: []types.Level{{Price: 12, Qty: 1}, {Price: 11, Qty: 1}},
	})
	book, err := ex.OrderBook(context.Background(), "eth/usdt", 2)
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 10.0, book.Bids[0].Price)
	assert.Equal(t, 11.0, book.Asks[0].Price)
}

func TestSymbolInfoFallsBackToParsedAssets(t *testing.T) {
	ex := New(Config{}, nil)
	r, err := ex.SymbolInfo(context.Background(), "SUIUSDT")
	require.NoError(t, err)
	assert.Equal(t, "USDT", r.QuoteAsset)
	assert.Equal(t, "SUI", r.BaseAsset)
	assert.Zero(t, r.StepSize)
}
