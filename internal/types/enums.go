package types

import "strings"

// Side 表示现货订单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide 宽松解析方向字符串，无法识别时返回空值。
func ParseSide(raw string) Side {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG":
		return SideBuy
	case "SELL", "SHORT", "EXIT":
		return SideSell
	default:
		return ""
	}
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

func (t TimeInForce) Valid() bool {
	return t == TimeInForceGTC || t == TimeInForceIOC
}

// Action 是驱动器对单个币种一次迭代的决策结果。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionWait Action = "WAIT"
)

// Status 是 OrderResult 的稳定状态码，对外可观测。
type Status string

const (
	StatusOK             Status = "ok"
	StatusRejected       Status = "rejected"
	StatusCooldownReject Status = "cooldown-reject"
	StatusRuleViolation  Status = "rule-violation"
	StatusExchangeReject Status = "exchange-reject"
	StatusNetworkError   Status = "network-error"
	StatusUnknownError   Status = "unknown-error"
	StatusMockOK         Status = "mock-ok"
)

// Succeeded reports whether the status represents an accepted order.
func (s Status) Succeeded() bool {
	return s == StatusOK || s == StatusMockOK
}

// Reason 是校验链与预检的拒绝原因码（封闭集合）。
type Reason string

const (
	ReasonInvalidSide      Reason = "invalid_side"
	ReasonQtyNonPositive   Reason = "qty_non_positive"
	ReasonSLEntryOrdering  Reason = "sl_entry_ordering"
	ReasonMinNotional      Reason = "min_notional"
	ReasonStepSize         Reason = "step_size"
	ReasonTickSize         Reason = "tick_size"
	ReasonInsufficientBal  Reason = "insufficient_balance"
	ReasonSlippage         Reason = "slippage_exceeds_limit"
	ReasonSpread           Reason = "spread_exceeds_limit"
	ReasonImpact           Reason = "impact_exceeds_limit"
	ReasonCooldown         Reason = "cooldown"
	ReasonDailyTradeLimit  Reason = "daily_trade_limit"
	ReasonHourlyTradeLimit Reason = "hourly_trade_limit"
	ReasonExposureTotal    Reason = "exposure_total"
	ReasonExposureSymbol   Reason = "exposure_symbol"
	ReasonDailyLossHalt    Reason = "daily_loss_halt"
	ReasonCostBudget       Reason = "cost_budget"
	ReasonRegimeOff        Reason = "regime_off"
	ReasonValidatorError   Reason = "validator_error"
	ReasonNoPriceSource    Reason = "insufficient_price_source"
)

// AllReasons 按文档顺序列出全部原因码。
var AllReasons = []Reason{
	ReasonInvalidSide, ReasonQtyNonPositive, ReasonSLEntryOrdering, ReasonMinNotional,
	ReasonStepSize, ReasonTickSize, ReasonInsufficientBal, ReasonSlippage, ReasonSpread,
	ReasonImpact, ReasonCooldown, ReasonDailyTradeLimit, ReasonHourlyTradeLimit,
	ReasonExposureTotal, ReasonExposureSymbol, ReasonDailyLossHalt, ReasonCostBudget,
	ReasonRegimeOff, ReasonValidatorError, ReasonNoPriceSource,
}

// ExecState 描述单笔订单在执行器中的生命周期。
type ExecState string

const (
	ExecIdle       ExecState = "idle"
	ExecPrecheck   ExecState = "precheck"
	ExecSubmitting ExecState = "submitting"
	ExecFilled     ExecState = "filled"
	ExecPartial    ExecState = "partial"
	ExecRejected   ExecState = "rejected"
	ExecCanceled   ExecState = "canceled"
	ExecError      ExecState = "error"
)

// Terminal reports whether no further transition can happen from s.
func (s ExecState) Terminal() bool {
	switch s {
	case ExecFilled, ExecRejected, ExecCanceled, ExecError:
		return true
	default:
		return false
	}
}
