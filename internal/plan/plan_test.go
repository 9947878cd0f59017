package plan

import (
	"testing"

	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRules(t *testing.T) {
	b := NewBuilder()
	cases := []struct {
		name   string
		sig    types.SignalBundle
		action types.Action
		side   types.Side
	}{
		{"regime off", types.SignalBundle{Symbol: "BTCUSDT", BuyScore: 0.9}, types.ActionWait, ""},
		{"buy", types.SignalBundle{Symbol: "BTCUSDT", BuyScore: 0.7, SellScore: 0.2, RegimeOn: true}, types.ActionBuy, types.SideBuy},
		{"tie goes to buy", types.SignalBundle{Symbol: "BTCUSDT", BuyScore: 0.6, SellScore: 0.6, RegimeOn: true}, types.ActionBuy, types.SideBuy},
		{"sell", types.SignalBundle{Symbol: "BTCUSDT", BuyScore: 0.3, SellScore: 0.8, RegimeOn: true}, types.ActionSell, types.SideSell},
		{"below threshold", types.SignalBundle{Symbol: "BTCUSDT", BuyScore: 0.59, SellScore: 0.5, RegimeOn: true}, types.ActionHold, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.action, b.Decide(tc.sig))
			p, ok := b.Build(tc.sig)
			assert.Equal(t, tc.side != "", ok)
			assert.Equal(t, tc.side, p.Side)
		})
	}
}

func TestBuilderPlanShape(t *testing.T) {
	p, ok := NewBuilder().Build(types.SignalBundle{Symbol: "sui/usdt", BuyScore: 0.75, RegimeOn: true})
	require.True(t, ok)
	assert.Equal(t, "SUIUSDT", p.Symbol)
	assert.Equal(t, 0.75, p.Confidence)
	assert.Zero(t, p.QtyBase)
	assert.Zero(t, p.QtyQuote)
	assert.True(t, p.HasTag(TagSpotOnly))
	assert.False(t, p.Exit)

	p, ok = NewBuilder().Build(types.SignalBundle{Symbol: "SUIUSDT", SellScore: 0.9, RegimeOn: true})
	require.True(t, ok)
	assert.True(t, p.Exit)
	assert.True(t, p.HasTag(TagExit))
}

func TestAdjusterOrderAndCopy(t *testing.T) {
	a := NewAdjuster(Preferences{OrderType: types.OrderTypeLimit, TimeInForce: types.TimeInForceGTC, PostOnly: true, MaxSlippagePct: 0.005})
	orig := types.OrderPlan{Symbol: "BTCUSDT", Side: types.SideBuy, QtyQuote: 20, EntryPrice: 100.004}

	out := a.Apply(orig, types.RiskCheckResult{OK: true, AdjustedQty: 0.1999, AdjustedEntry: 100.0, AdjustedSL: 98, AdjustedTP: 104})

	assert.Equal(t, 0.1999, out.QtyBase)
	assert.Zero(t, out.QtyQuote)
	assert.Equal(t, 100.0, out.EntryPrice)
	assert.Equal(t, 98.0, out.StopPrice)
	assert.Equal(t, 104.0, out.TakeProfitPrice)
	assert.Equal(t, types.OrderTypeLimit, out.OrderType)
	assert.True(t, out.PostOnly)
	assert.Equal(t, "100.004->100", out.Meta["adj.entry_price"])
	assert.Equal(t, "LIMIT", out.Meta["exec.order_type"])

	assert.Nil(t, orig.Meta, "argument must not be mutated")
	assert.Equal(t, 20.0, orig.QtyQuote)
}

func TestAdjusterIdempotentOnZeroResult(t *testing.T) {
	a := NewAdjuster(Preferences{OrderType: types.OrderTypeMarket, TimeInForce: types.TimeInForceGTC, MaxSlippagePct: 0.01})
	once := a.Apply(types.OrderPlan{Symbol: "ETHUSDT", Side: types.SideBuy, QtyBase: 0.01}, types.RiskCheckResult{OK: true})
	twice := a.Apply(once, types.RiskCheckResult{OK: true})
	assert.Equal(t, once, twice)
	assert.False(t, once.PostOnly)

	full := types.OrderPlan{Symbol: "ETHUSDT", Side: types.SideSell, QtyBase: 1, OrderType: types.OrderTypeMarket,
		TimeInForce: types.TimeInForceIOC, MaxSlippagePct: 0.02}
	assert.Equal(t, full, a.Apply(full, types.RiskCheckResult{OK: true}))
}
