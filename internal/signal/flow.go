package signal

import (
	"spotpilot/internal/types"

	"github.com/shopspring/decimal"
)

// flowLookback 是背离比较的回看根数。
const flowLookback = 6

// OrderFlow 是主动买卖量差（CVD）的摘要。
type OrderFlow struct {
	CVD        float64
	Momentum   float64
	Normalized float64
	// Divergence 为 bullish / bearish / neutral。
	Divergence string
}

// ComputeOrderFlow 用 taker 买量与总量累计 CVD。没有 taker 数据时返回 false。
func ComputeOrderFlow(candles []types.Candle) (OrderFlow, bool) {
	if len(candles) == 0 {
		return OrderFlow{}, false
	}
	hasTaker := false
	for _, c := range candles {
		if c.TakerBuy > 0 {
			hasTaker = true
			break
		}
	}
	if !hasTaker {
		return OrderFlow{}, false
	}

	cvd := make([]decimal.Decimal, 0, len(candles))
	cumulative := decimal.Zero
	for _, c := range candles {
		buy := decimal.NewFromFloat(c.TakerBuy)
		sell := decimal.NewFromFloat(c.Volume).Sub(buy)
		cumulative = cumulative.Add(buy.Sub(sell))
		cvd = append(cvd, cumulative)
	}

	last := cvd[len(cvd)-1]
	lo, hi := cvd[0], cvd[0]
	for _, v := range cvd[1:] {
		lo = decimal.Min(lo, v)
		hi = decimal.Max(hi, v)
	}
	norm := decimal.NewFromFloat(0.5)
	if hi.GreaterThan(lo) {
		norm = last.Sub(lo).Div(hi.Sub(lo))
	}

	back := 0
	if len(cvd) > flowLookback {
		back = len(cvd) - flowLookback
	}
	momentum := last.Sub(cvd[back])
	priceNow := candles[len(candles)-1].Close
	pricePrev := candles[back].Close

	divergence := "neutral"
	switch {
	case priceNow > pricePrev && last.LessThan(cvd[back]):
		divergence = "bearish"
	case priceNow < pricePrev && last.GreaterThan(cvd[back]):
		divergence = "bullish"
	}

	return OrderFlow{
		CVD:        last.InexactFloat64(),
		Momentum:   momentum.InexactFloat64(),
		Normalized: norm.Round(4).InexactFloat64(),
		Divergence: divergence,
	}, true
}
