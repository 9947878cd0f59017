// Package outcome 将任意错误映射到稳定的状态码与异常类型名。
// 分类只依赖错误类型链与消息文本，不做 I/O。
package outcome

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"spotpilot/internal/types"
)

// 异常类型名，作为 exceptions_total 的 type 标签。
const (
	TypeCooldown      = "CooldownError"
	TypeRuleViolation = "RuleViolationError"
	TypeExchange      = "ExchangeError"
	TypeTimeout       = "TimeoutError"
	TypeConnection    = "ConnectionError"
	TypeCanceled      = "CanceledError"
	TypePanic         = "PanicError"
	TypeUnknown       = "UnknownError"
)

// Classification 是一次分类的结果。
type Classification struct {
	Status types.Status
	Type   string
}

// Classify 按 cooldown → rule → exchange → network → unknown 的优先级分类。
// err 为 nil 时返回 ok。
func Classify(err error) Classification {
	if err == nil {
		return Classification{Status: types.StatusOK}
	}
	var cd *CooldownError
	if errors.As(err, &cd) {
		return Classification{Status: types.StatusCooldownReject, Type: TypeCooldown}
	}
	var rv *RuleViolationError
	if errors.As(err, &rv) {
		return Classification{Status: types.StatusRuleViolation, Type: TypeRuleViolation}
	}
	var ex *ExchangeError
	if errors.As(err, &ex) {
		return Classification{Status: types.StatusExchangeReject, Type: TypeExchange}
	}
	if typ, ok := networkType(err); ok {
		return Classification{Status: types.StatusNetworkError, Type: typ}
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return Classification{Status: types.StatusUnknownError, Type: TypePanic}
	}
	return Classification{Status: types.StatusUnknownError, Type: TypeUnknown}
}

func networkType(err error) (string, bool) {
	var ne *NetworkError
	if errors.As(err, &ne) {
		if ne.Timeout || isTimeout(ne.Err) {
			return TypeTimeout, true
		}
		return TypeConnection, true
	}
	if isTimeout(err) {
		return TypeTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return TypeCanceled, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TypeConnection, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return TypeConnection, true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return TypeTimeout, true
	case strings.Contains(msg, "connection"), strings.Contains(msg, "no such host"), strings.Contains(msg, "eof"):
		return TypeConnection, true
	}
	return "", false
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// ForReason 将校验链原因码映射为结果状态：节流类为 cooldown-reject，
// 交易所网格与参数类为 rule-violation，其余为 rejected。
func ForReason(reason types.Reason) types.Status {
	switch reason {
	case types.ReasonCooldown, types.ReasonDailyTradeLimit, types.ReasonHourlyTradeLimit:
		return types.StatusCooldownReject
	case types.ReasonInvalidSide, types.ReasonQtyNonPositive, types.ReasonSLEntryOrdering,
		types.ReasonMinNotional, types.ReasonStepSize, types.ReasonTickSize:
		return types.StatusRuleViolation
	default:
		return types.StatusRejected
	}
}
