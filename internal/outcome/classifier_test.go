package outcome

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
)

type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "i/o failure" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return false }

var _ net.Error = fakeNetErr{}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status types.Status
		typ    string
	}{
		{"nil", nil, types.StatusOK, ""},
		{"cooldown", &CooldownError{Symbol: "ADAUSDT", Remaining: time.Second}, types.StatusCooldownReject, TypeCooldown},
		{"rule", fmt.Errorf("wrap: %w", &RuleViolationError{Rule: "step_size"}), types.StatusRuleViolation, TypeRuleViolation},
		{"exchange", &ExchangeError{Code: -1013, Message: "Filter failure: LOT_SIZE"}, types.StatusExchangeReject, TypeExchange},
		{"exchange beats timeout text", &ExchangeError{Code: -1007, Message: "Timeout waiting for response"}, types.StatusExchangeReject, TypeExchange},
		{"deadline", fmt.Errorf("submit: %w", context.DeadlineExceeded), types.StatusNetworkError, TypeTimeout},
		{"net timeout", fakeNetErr{timeout: true}, types.StatusNetworkError, TypeTimeout},
		{"typed connection", &NetworkError{Op: "submit", Err: errors.New("reset")}, types.StatusNetworkError, TypeConnection},
		{"typed timeout", &NetworkError{Op: "submit", Timeout: true}, types.StatusNetworkError, TypeTimeout},
		{"message timeout", errors.New("read tcp: Timeout exceeded"), types.StatusNetworkError, TypeTimeout},
		{"message connection", errors.New("connection refused by peer"), types.StatusNetworkError, TypeConnection},
		{"canceled", context.Canceled, types.StatusNetworkError, TypeCanceled},
		{"panic", &PanicError{Value: "boom"}, types.StatusUnknownError, TypePanic},
		{"unknown", errors.New("something odd"), types.StatusUnknownError, TypeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.typ, got.Type)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	mk := func() error { return errors.New("upstream timeout after 5s") }
	first := Classify(mk())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(mk()))
	}
}

func TestForReason(t *testing.T) {
	assert.Equal(t, types.StatusCooldownReject, ForReason(types.ReasonCooldown))
	assert.Equal(t, types.StatusCooldownReject, ForReason(types.ReasonHourlyTradeLimit))
	assert.Equal(t, types.StatusRuleViolation, ForReason(types.ReasonMinNotional))
	assert.Equal(t, types.StatusRuleViolation, ForReason(types.ReasonStepSize))
	assert.Equal(t, types.StatusRejected, ForReason(types.ReasonSlippage))
	assert.Equal(t, types.StatusRejected, ForReason(types.ReasonDailyLossHalt))
	for _, r := range types.AllReasons {
		assert.NotEmpty(t, ForReason(r))
	}
}
