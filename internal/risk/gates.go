package risk

import (
	"math"

	"spotpilot/internal/pkg/quant"
	"spotpilot/internal/types"
)

func (v *Validator) gateSide(c *check) bool {
	if !c.side.Valid() {
		return c.reject(types.ReasonInvalidSide, "side %q is not BUY or SELL", c.side)
	}
	return true
}

// gateHaltLatched 让已触发日亏损熔断后的 BUY 稳定返回 daily_loss_halt。
func (v *Validator) gateHaltLatched(c *check) bool {
	if c.side == types.SideBuy && v.ledger.Halted(c.in.Now) {
		return c.reject(types.ReasonDailyLossHalt, "daily loss halt latched")
	}
	return true
}

// gateQuantity 同时给出 qty_base 与 qty_quote 时以 quote 为准。
func (v *Validator) gateQuantity(c *check) bool {
	p := c.in.Plan
	if bad(p.QtyBase) || bad(p.QtyQuote) || p.QtyBase < 0 || p.QtyQuote < 0 {
		return c.reject(types.ReasonQtyNonPositive, "qty_base=%v qty_quote=%v", p.QtyBase, p.QtyQuote)
	}
	if p.QtyQuote > 0 {
		c.quote = p.QtyQuote
		c.derived = true
		if p.QtyBase > 0 {
			c.note("qty_quote overrides qty_base")
		}
		return true
	}
	c.qty = p.QtyBase
	return true
}

func (v *Validator) gateReference(c *check) bool {
	p := c.in.Plan
	if bad(p.EntryPrice) || p.EntryPrice < 0 {
		return c.reject(types.ReasonNoPriceSource, "invalid entry price %v", p.EntryPrice)
	}
	c.entry = p.EntryPrice
	c.last = c.in.Market.LastPrice
	if bad(c.last) || c.last < 0 {
		c.last = 0
	}
	c.ref = c.entry
	if c.ref <= 0 {
		c.ref = c.last
	}
	if c.ref <= 0 {
		return c.reject(types.ReasonNoPriceSource, "no entry price and no last price for %s", p.Symbol)
	}
	c.res.ReferencePrice = c.ref
	return true
}

func (v *Validator) gateSizeBuy(c *check) bool {
	if c.side != types.SideBuy || c.qty > 0 {
		return true
	}
	rules := c.in.Rules
	notional := c.quote
	if notional <= 0 {
		notional = c.in.Account.QuoteFree * v.cfg.PositionSizePct
		c.derived = true
	}
	if v.cfg.AllowAutoscale && notional < rules.MinNotional {
		target := quant.Add(rules.MinNotional, quant.Mul(rules.StepSize, c.ref))
		if target <= c.in.Account.QuoteFree {
			c.note("notional %.8g autoscaled to %.8g", notional, target)
			notional = target
		}
	}
	c.qty = quant.FloorToStep(quant.Div(notional, c.ref), rules.StepSize)
	if c.qty <= 0 {
		return c.reject(types.ReasonStepSize, "notional %.8g below one step at %.8g", notional, c.ref)
	}
	return true
}

// gateSizeSell 现货卖出以可用基础资产为上限。
func (v *Validator) gateSizeSell(c *check) bool {
	if c.side != types.SideSell {
		return true
	}
	held := c.in.Account.BaseFree
	if held <= 0 {
		return c.reject(types.ReasonInsufficientBal, "no free base balance to sell")
	}
	if c.qty <= 0 {
		if c.quote > 0 {
			c.qty = quant.Div(c.quote, c.ref)
		} else {
			c.qty = held
		}
	}
	if c.qty > held {
		c.note("sell qty %.8g clamped to free %.8g", c.qty, held)
		c.qty = held
	}
	return true
}

func (v *Validator) gateQuantize(c *check) bool {
	rules := c.in.Rules
	p := c.in.Plan
	qty := quant.FloorToStep(c.qty, rules.StepSize)
	if qty <= 0 {
		return c.reject(types.ReasonStepSize, "qty %.10g floors to zero with step %v", c.qty, rules.StepSize)
	}
	c.qty = qty
	if qty != p.QtyBase || c.derived {
		c.res.AdjustedQty = qty
	}
	if c.entry > 0 {
		entry := quant.RoundToTick(c.entry, rules.TickSize)
		if entry <= 0 {
			return c.reject(types.ReasonTickSize, "entry %.10g rounds to zero with tick %v", c.entry, rules.TickSize)
		}
		if entry != c.entry {
			c.res.AdjustedEntry = entry
		}
		c.entry = entry
		c.ref = entry
		c.res.ReferencePrice = entry
	}

	c.sl, c.tp = p.StopPrice, p.TakeProfitPrice
	if c.sl > 0 {
		if sl := quant.RoundToTick(c.sl, rules.TickSize); sl != c.sl {
			c.sl = sl
			c.res.AdjustedSL = sl
		}
	} else if c.side == types.SideBuy && v.cfg.DefaultStopLossPct > 0 {
		c.sl = quant.FloorToTick(quant.Mul(c.ref, quant.Sub(1, v.cfg.DefaultStopLossPct)), rules.TickSize)
		c.res.AdjustedSL = c.sl
	}
	if c.tp > 0 {
		if tp := quant.RoundToTick(c.tp, rules.TickSize); tp != c.tp {
			c.tp = tp
			c.res.AdjustedTP = tp
		}
	} else if c.side == types.SideBuy && v.cfg.DefaultTakeProfitPct > 0 {
		c.tp = quant.CeilToTick(quant.Mul(c.ref, quant.Add(1, v.cfg.DefaultTakeProfitPct)), rules.TickSize)
		c.res.AdjustedTP = c.tp
	}
	return true
}

func (v *Validator) gateMinNotional(c *check) bool {
	minNotional := c.in.Rules.MinNotional
	if !quant.MeetsMinNotional(c.qty, c.ref, minNotional) {
		return c.reject(types.ReasonMinNotional, "notional %.8g below minimum %.8g", quant.Notional(c.qty, c.ref), minNotional)
	}
	return true
}

func (v *Validator) gateBalance(c *check) bool {
	if c.side != types.SideBuy {
		return true
	}
	need := quant.Mul(quant.Notional(c.qty, c.ref), 1+v.cfg.FeeRate)
	if need > c.in.Account.QuoteFree {
		return c.reject(types.ReasonInsufficientBal, "need %.8g %s, free %.8g", need, c.in.Account.QuoteAsset, c.in.Account.QuoteFree)
	}
	return true
}

// gateOrdering BUY 要求 sl < entry < tp，SELL 相反；只比较已设置的价格。
func (v *Validator) gateOrdering(c *check) bool {
	prices := make([]float64, 0, 3)
	for _, p := range []float64{c.sl, c.entry, c.tp} {
		if p > 0 {
			prices = append(prices, p)
		}
	}
	for i := 1; i < len(prices); i++ {
		ascending := prices[i-1] < prices[i]
		if (c.side == types.SideBuy && !ascending) || (c.side == types.SideSell && prices[i-1] <= prices[i]) {
			return c.reject(types.ReasonSLEntryOrdering, "%s requires stop/entry/take-profit ordering, got sl=%v entry=%v tp=%v",
				c.side, c.sl, c.entry, c.tp)
		}
	}
	return true
}

func (v *Validator) gateMarketQuality(c *check) bool {
	q, reason, detail := v.Assess(MarketCheck{
		Side:           c.side,
		Qty:            c.qty,
		Entry:          c.entry,
		Last:           c.last,
		Reference:      c.ref,
		MaxSlippagePct: c.in.Plan.MaxSlippagePct,
		Book:           c.in.Market.Book,
	})
	c.res.VWAP = q.VWAP
	c.res.ExpectedSlippage = q.ExpectedSlippage
	if reason != "" {
		return c.reject(reason, "%s", detail)
	}
	return true
}

// gatePacing 依次检查冷却、日上限、全局小时上限。
func (v *Validator) gatePacing(c *check) bool {
	sym := c.in.Plan.Symbol
	ok, reason := v.ledger.Check(sym, c.in.Now, v.cfg.SkipCooldown)
	if ok {
		return true
	}
	if reason == types.ReasonCooldown {
		remaining := v.ledger.CooldownRemaining(sym, c.in.Now)
		c.res.CooldownRemaining = remaining.Seconds()
		return c.reject(reason, "cooldown active for %s (%.1fs remaining)", sym, remaining.Seconds())
	}
	return c.reject(reason, "trade cap reached for %s", sym)
}

func (v *Validator) gateExposure(c *check) bool {
	if c.side != types.SideBuy {
		return true
	}
	eq := c.equity()
	n := c.notional()
	sym := c.in.Plan.Symbol
	total := v.ledger.TotalExposure() + n
	if v.cfg.MaxTotalExposurePct > 0 && total > v.cfg.MaxTotalExposurePct*eq {
		return c.reject(types.ReasonExposureTotal, "total exposure %.8g exceeds %.2f%% of equity %.8g", total, v.cfg.MaxTotalExposurePct*100, eq)
	}
	symExp := v.ledger.Exposure(sym) + n
	if v.cfg.MaxSymbolExposurePct > 0 && symExp > v.cfg.MaxSymbolExposurePct*eq {
		return c.reject(types.ReasonExposureSymbol, "%s exposure %.8g exceeds %.2f%% of equity %.8g", sym, symExp, v.cfg.MaxSymbolExposurePct*100, eq)
	}
	return true
}

// gateDailyLoss 达到日亏损上限时锁存熔断；SELL 仍放行。
func (v *Validator) gateDailyLoss(c *check) bool {
	start := c.in.Account.DayStartEquity
	if v.cfg.DailyLossLimitPct <= 0 || start <= 0 {
		return true
	}
	if start-c.in.Account.Equity >= v.cfg.DailyLossLimitPct*start {
		v.ledger.LatchHalt(c.in.Now)
		if c.side == types.SideBuy {
			return c.reject(types.ReasonDailyLossHalt, "equity %.8g down %.2f%% from day start %.8g",
				c.in.Account.Equity, (start-c.in.Account.Equity)/start*100, start)
		}
		c.note("daily loss halt latched; exit allowed")
	}
	return true
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
