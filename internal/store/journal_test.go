package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spotpilot/internal/pipeline"
	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal", "trades.db"), 8*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalRecordsAttemptsAndSummaries(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	// 2024-06-03 18:00 UTC 在 +8 时区已是 06-04。
	base := time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)

	attempts := []pipeline.Attempt{
		{
			ID: "a1", Time: base, Symbol: "BTCUSDT", Executed: true,
			Plan:   types.OrderPlan{Symbol: "BTCUSDT", Side: types.SideBuy, QtyBase: 0.2},
			Result: types.OrderResult{Symbol: "BTCUSDT", Side: types.SideBuy, Success: true, Status: types.StatusOK, FilledQty: 0.2, FilledQuote: 20, AvgPrice: 100, FeeQuote: 0.02, OrderID: "42", State: types.ExecFilled},
		},
		{
			ID: "a2", Time: base.Add(time.Minute), Symbol: "BTCUSDT",
			Plan:   types.OrderPlan{Symbol: "BTCUSDT", Side: types.SideBuy, QtyBase: 0.0001, EntryPrice: 100},
			Check:  types.Reject(types.ReasonMinNotional, "notional 0.01 below 5"),
			Result: types.Rejected(types.OrderPlan{Symbol: "BTCUSDT", Side: types.SideBuy}, types.StatusRuleViolation, "min_notional"),
		},
		{
			ID: "a3", Time: base.Add(2 * time.Minute), Symbol: "BTCUSDT", Executed: true,
			Plan:   types.OrderPlan{Symbol: "BTCUSDT", Side: types.SideSell, QtyBase: 0.1},
			Result: types.OrderResult{Symbol: "BTCUSDT", Side: types.SideSell, Success: true, Status: types.StatusOK, FilledQty: 0.1, FilledQuote: 11, AvgPrice: 110, FeeQuote: 0.011, Raw: map[string]any{"realized_pnl": 0.969}},
		},
		{
			ID: "a4", Time: base.Add(3 * time.Minute), Symbol: "ETHUSDT", Executed: true,
			Plan:   types.OrderPlan{Symbol: "ETHUSDT", Side: types.SideBuy, QtyBase: 1},
			Result: types.OrderResult{Symbol: "ETHUSDT", Side: types.SideBuy, Status: types.StatusNetworkError, Error: "submit timeout error"},
		},
		{ID: "hold", Time: base, Symbol: "ETHUSDT", Action: types.ActionHold},
	}
	for _, a := range attempts {
		require.NoError(t, j.Record(ctx, a))
	}
	// 重复写入同一尝试不产生新行。
	require.NoError(t, j.Record(ctx, attempts[0]))

	recent, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "a4", recent[0].AttemptID)
	assert.Equal(t, "network-error", recent[0].Status)

	btc, err := j.Recent(ctx, "btcusdt", 10)
	require.NoError(t, err)
	require.Len(t, btc, 3)
	sell := btc[0]
	assert.Equal(t, "SELL", sell.Action)
	assert.InDelta(t, 0.969, sell.PnL, 1e-12)
	assert.InDelta(t, 110, sell.Price, 1e-12)

	rejected := btc[1]
	assert.Equal(t, "rule-violation", rejected.Status)
	assert.InDelta(t, 0.0001, rejected.Quantity, 1e-12)
	assert.Equal(t, "min_notional", gjson.GetBytes(rejected.Raw, "check.reasons.0").String())

	day := j.Day(base)
	assert.Equal(t, "2024-06-04", day)
	sum, err := j.Summary(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Attempts)
	assert.Equal(t, 2, sum.Trades)
	assert.Equal(t, 1, sum.Rejections)
	assert.Equal(t, 1, sum.Errors)
	assert.InDelta(t, 31, sum.Volume, 1e-9)
	assert.InDelta(t, 0.969, sum.RealizedPnL, 1e-12)

	empty, err := j.Summary(ctx, "1999-01-01")
	require.NoError(t, err)
	assert.Zero(t, empty.Attempts)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", 0)
	assert.Error(t, err)
}
