package risk

import (
	"fmt"
	"math"

	"spotpilot/internal/pkg/quant"
	"spotpilot/internal/types"

	"github.com/shopspring/decimal"
)

// Quality 是订单簿质量评估结果。
type Quality struct {
	Spread           float64 `json:"spread"`
	Impact           float64 `json:"impact"`
	VWAP             float64 `json:"vwap"`
	ExpectedSlippage float64 `json:"expected_slippage"`
	Filled           bool    `json:"filled"`
}

// MarketCheck 是点差/冲击/滑点/成本检查的输入，校验链与执行器预检共用。
type MarketCheck struct {
	Side           types.Side
	Qty            float64
	Entry          float64
	Last           float64
	Reference      float64
	MaxSlippagePct float64
	Book           *types.OrderBook
}

// Spread 返回 (ask-bid)/mid；任一侧为空时 ok=false。
func Spread(book *types.OrderBook) (decimal.Decimal, bool) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk || bid.Price <= 0 || ask.Price <= 0 {
		return decimal.Zero, false
	}
	return quant.SpreadRatio(bid.Price, ask.Price), true
}

// Walk 沿 levels 吃掉 qty，返回成交均价、最差成交价以及深度是否足够。
func Walk(levels []types.Level, qty float64) (vwap, worst float64, filled bool) {
	if qty <= 0 || len(levels) == 0 {
		return 0, 0, false
	}
	remaining := qty
	var notional, taken float64
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if lvl.Qty <= 0 || lvl.Price <= 0 {
			continue
		}
		take := math.Min(remaining, lvl.Qty)
		notional += take * lvl.Price
		taken += take
		remaining -= take
		worst = lvl.Price
	}
	if taken > 0 {
		vwap = notional / taken
	}
	return vwap, worst, remaining <= qty*1e-12
}

// Assess 依次检查滑点、点差、冲击与全部成本，返回首个失败原因。
func (v *Validator) Assess(mc MarketCheck) (Quality, types.Reason, string) {
	var q Quality
	slip := decimal.Zero
	maxSlip := mc.MaxSlippagePct
	if maxSlip <= 0 {
		maxSlip = v.cfg.MaxSlippagePct
	}
	if mc.Entry > 0 && mc.Last > 0 && maxSlip > 0 {
		dev := quant.Deviation(mc.Entry, mc.Last)
		if quant.Exceeds(dev, maxSlip) {
			return q, types.ReasonSlippage, fmt.Sprintf("entry %.8g deviates %.4f%% from last %.8g (limit %.4f%%)",
				mc.Entry, quant.Float(dev)*100, mc.Last, maxSlip*100)
		}
	}

	if mc.Book != nil {
		if spread, ok := Spread(mc.Book); ok {
			q.Spread = quant.Float(spread)
			if v.cfg.MaxSpreadPct > 0 && quant.Exceeds(spread, v.cfg.MaxSpreadPct) {
				return q, types.ReasonSpread, fmt.Sprintf("spread %.4f%% above %.4f%%", q.Spread*100, v.cfg.MaxSpreadPct*100)
			}
		}
		levels := mc.Book.Side(mc.Side)
		vwap, worst, filled := Walk(levels, mc.Qty)
		q.VWAP, q.Filled = vwap, filled
		if !filled {
			return q, types.ReasonImpact, fmt.Sprintf("book depth cannot absorb qty %.8g", mc.Qty)
		}
		best := levels[0].Price
		impact := quant.Deviation(worst, best)
		q.Impact = quant.Float(impact)
		if v.cfg.MaxImpactPct > 0 && quant.Exceeds(impact, v.cfg.MaxImpactPct) {
			return q, types.ReasonImpact, fmt.Sprintf("impact %.4f%% above %.4f%%", q.Impact*100, v.cfg.MaxImpactPct*100)
		}
		if mc.Reference > 0 {
			slip = quant.Deviation(vwap, mc.Reference)
		}
	} else if mc.Entry > 0 && mc.Last > 0 {
		slip = quant.Deviation(mc.Entry, mc.Last)
	}
	q.ExpectedSlippage = quant.Float(slip)

	if v.cfg.MaxAllInCostPct > 0 {
		cost := decimal.NewFromFloat(v.cfg.FeeRate).Add(slip)
		if quant.Exceeds(cost, v.cfg.MaxAllInCostPct) {
			return q, types.ReasonCostBudget, fmt.Sprintf("all-in cost %.4f%% above %.4f%%", quant.Float(cost)*100, v.cfg.MaxAllInCostPct*100)
		}
	}
	return q, "", ""
}
