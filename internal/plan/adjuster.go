package plan

import (
	"strconv"

	"spotpilot/internal/types"
)

// Preferences 是配置中的下单偏好。
type Preferences struct {
	OrderType      types.OrderType
	TimeInForce    types.TimeInForce
	PostOnly       bool
	MaxSlippagePct float64
}

// Adjuster 按 qty → entry → sl → tp 的顺序应用校验调整，再补齐下单偏好。
// 只写入计划中缺失的偏好，因此对同一计划重复应用零调整结果不会产生变化。
type Adjuster struct {
	prefs Preferences
}

func NewAdjuster(prefs Preferences) *Adjuster {
	return &Adjuster{prefs: prefs}
}

func (a *Adjuster) Apply(plan types.OrderPlan, res types.RiskCheckResult) types.OrderPlan {
	out := plan.Clone()
	if res.AdjustedQty > 0 && res.AdjustedQty != out.QtyBase {
		trail(&out, "adj.qty_base", out.QtyBase, res.AdjustedQty)
		out.QtyBase = res.AdjustedQty
	}
	if res.AdjustedQty > 0 && out.QtyQuote > 0 {
		trail(&out, "adj.qty_quote", out.QtyQuote, 0)
		out.QtyQuote = 0
	}
	if res.AdjustedEntry > 0 && res.AdjustedEntry != out.EntryPrice {
		trail(&out, "adj.entry_price", out.EntryPrice, res.AdjustedEntry)
		out.EntryPrice = res.AdjustedEntry
	}
	if res.AdjustedSL > 0 && res.AdjustedSL != out.StopPrice {
		trail(&out, "adj.stop_price", out.StopPrice, res.AdjustedSL)
		out.StopPrice = res.AdjustedSL
	}
	if res.AdjustedTP > 0 && res.AdjustedTP != out.TakeProfitPrice {
		trail(&out, "adj.take_profit_price", out.TakeProfitPrice, res.AdjustedTP)
		out.TakeProfitPrice = res.AdjustedTP
	}

	if out.OrderType == "" && a.prefs.OrderType != "" {
		out.OrderType = a.prefs.OrderType
		out.PostOnly = a.prefs.PostOnly && a.prefs.OrderType == types.OrderTypeLimit
		setMeta(&out, "exec.order_type", string(out.OrderType))
		setMeta(&out, "exec.post_only", strconv.FormatBool(out.PostOnly))
	}
	if out.TimeInForce == "" && a.prefs.TimeInForce != "" {
		out.TimeInForce = a.prefs.TimeInForce
		setMeta(&out, "exec.time_in_force", string(out.TimeInForce))
	}
	if out.MaxSlippagePct == 0 && a.prefs.MaxSlippagePct > 0 {
		out.MaxSlippagePct = a.prefs.MaxSlippagePct
		setMeta(&out, "exec.max_slippage_pct", formatFloat(out.MaxSlippagePct))
	}
	return out
}

func trail(p *types.OrderPlan, key string, from, to float64) {
	setMeta(p, key, formatFloat(from)+"->"+formatFloat(to))
}

func setMeta(p *types.OrderPlan, key, value string) {
	if p.Meta == nil {
		p.Meta = make(map[string]string)
	}
	p.Meta[key] = value
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
