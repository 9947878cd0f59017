package types

import "strings"

// OrderPlan 是待校验的下单计划。
// 数量字段 0 表示未设置；计划只由 Adjuster 以拷贝方式改写。
type OrderPlan struct {
	Symbol          string            `json:"symbol"`
	Side            Side              `json:"side"`
	QtyBase         float64           `json:"qty_base,omitempty"`
	QtyQuote        float64           `json:"qty_quote,omitempty"`
	EntryPrice      float64           `json:"entry_price,omitempty"`
	StopPrice       float64           `json:"stop_price,omitempty"`
	TakeProfitPrice float64           `json:"take_profit_price,omitempty"`
	TimeInForce     TimeInForce       `json:"time_in_force,omitempty"`
	OrderType       OrderType         `json:"order_type,omitempty"`
	PostOnly        bool              `json:"post_only,omitempty"`
	MaxSlippagePct  float64           `json:"max_slippage_pct,omitempty"`
	Confidence      float64           `json:"confidence"`
	Exit            bool              `json:"exit,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Meta            map[string]string `json:"meta,omitempty"`
}

// Clone 返回深拷贝。
func (p OrderPlan) Clone() OrderPlan {
	out := p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Meta != nil {
		out.Meta = make(map[string]string, len(p.Meta))
		for k, v := range p.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

func (p OrderPlan) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// SymbolRules 是交易所对单个币种的下单约束，只读缓存。
type SymbolRules struct {
	Symbol      string  `json:"symbol" yaml:"symbol"`
	TickSize    float64 `json:"tick_size" yaml:"tick_size"`
	StepSize    float64 `json:"step_size" yaml:"step_size"`
	MinNotional float64 `json:"min_notional_quote" yaml:"min_notional_quote"`
	QuoteAsset  string  `json:"quote_asset" yaml:"quote_asset"`
	BaseAsset   string  `json:"base_asset" yaml:"base_asset"`
}

// Valid reports whether all grid parameters are positive.
func (r SymbolRules) Valid() bool {
	return r.TickSize > 0 && r.StepSize > 0 && r.MinNotional > 0
}
