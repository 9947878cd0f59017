package outcome

import (
	"fmt"
	"time"
)

// CooldownError 表示冷却期内的下单尝试。
type CooldownError struct {
	Symbol    string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active for %s (%.1fs remaining)", e.Symbol, e.Remaining.Seconds())
}

// RuleViolationError 表示违反交易所或本地规则（步长、最小名义额等）。
type RuleViolationError struct {
	Rule   string
	Detail string
}

func (e *RuleViolationError) Error() string {
	if e.Detail == "" {
		return "rule violation: " + e.Rule
	}
	return fmt.Sprintf("rule violation: %s: %s", e.Rule, e.Detail)
}

// ExchangeError 是交易所明确拒绝的请求（参数错误、过滤器失败、余额不足）。
type ExchangeError struct {
	Code    int64
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange rejected (code=%d): %s", e.Code, e.Message)
}

// NetworkError 包装传输层失败。
type NetworkError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	kind := "connection"
	if e.Timeout {
		kind = "timeout"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s error", e.Op, kind)
	}
	return fmt.Sprintf("%s %s error: %v", e.Op, kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PanicError 携带被恢复的 panic 值。
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
