package types

import "strings"

// RiskCheckResult 是校验链输出。调整项为 0 表示无调整。
type RiskCheckResult struct {
	OK                bool     `json:"ok"`
	Reasons           []Reason `json:"reasons,omitempty"`
	AdjustedQty       float64  `json:"adjusted_qty,omitempty"`
	AdjustedEntry     float64  `json:"adjusted_entry,omitempty"`
	AdjustedSL        float64  `json:"adjusted_sl,omitempty"`
	AdjustedTP        float64  `json:"adjusted_tp,omitempty"`
	RiskScore         float64  `json:"risk_score"`
	CooldownRemaining float64  `json:"cooldown_seconds_remaining,omitempty"`
	// ReferencePrice 为本次校验使用的参考价。
	ReferencePrice   float64  `json:"reference_price,omitempty"`
	VWAP             float64  `json:"vwap,omitempty"`
	ExpectedSlippage float64  `json:"expected_slippage,omitempty"`
	Detail           string   `json:"detail,omitempty"`
	Notes            []string `json:"notes,omitempty"`
}

// Reject 构造单一原因的拒绝结果。
func Reject(reason Reason, detail string) RiskCheckResult {
	return RiskCheckResult{OK: false, Reasons: []Reason{reason}, Detail: detail}
}

// FirstReason 返回首个拒绝原因，通过时为空。
func (r RiskCheckResult) FirstReason() Reason {
	if len(r.Reasons) == 0 {
		return ""
	}
	return r.Reasons[0]
}

func (r RiskCheckResult) ReasonString() string {
	if len(r.Reasons) == 0 {
		return ""
	}
	parts := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		parts[i] = string(reason)
	}
	return strings.Join(parts, ",")
}

// OrderResult 是一次下单尝试的最终结果，恰好携带一个 Status。
type OrderResult struct {
	Symbol      string         `json:"symbol"`
	Side        Side           `json:"side"`
	Success     bool           `json:"success"`
	OrderID     string         `json:"order_id,omitempty"`
	FilledQty   float64        `json:"filled_qty"`
	FilledQuote float64        `json:"filled_quote_value"`
	AvgPrice    float64        `json:"avg_fill_price"`
	FeeQuote    float64        `json:"fee_quote"`
	Status      Status         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Error       string         `json:"error,omitempty"`
	State       ExecState      `json:"state"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Rejected 构造未触达交易所的拒绝结果。
func Rejected(plan OrderPlan, status Status, reason string) OrderResult {
	return OrderResult{
		Symbol: plan.Symbol,
		Side:   plan.Side,
		Status: status,
		Reason: reason,
		State:  ExecRejected,
	}
}
