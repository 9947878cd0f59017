package account

import (
	"context"
	"testing"
	"time"

	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAccount struct {
	mock.Mock
}

func (m *MockAccount) FreeBalance(ctx context.Context, asset string) (float64, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(float64), args.Error(1)
}

func TestAverageCostAndRealizedPnL(t *testing.T) {
	tr := NewTracker(new(MockAccount), "USDT", 0)

	tr.RecordFill("BTCUSDT", types.SideBuy, 1, 100, 0)
	tr.RecordFill("BTCUSDT", types.SideBuy, 1, 120, 0)
	assert.InDelta(t, 2, tr.Held("BTCUSDT"), 1e-12)

	pnl := tr.RecordFill("BTCUSDT", types.SideSell, 1, 130, 1)
	assert.InDelta(t, 130-1-110, pnl, 1e-9)

	pnl = tr.RecordFill("BTCUSDT", types.SideSell, 1, 100, 0)
	assert.InDelta(t, -10, pnl, 1e-9)
	assert.Zero(t, tr.Held("BTCUSDT"))

	s := tr.Stats()
	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.InDelta(t, 9, s.RealizedPnL, 1e-9)
	assert.Equal(t, 0, s.OpenPosCount)
}

func TestStateValuesPositionsAndRollsDayStart(t *testing.T) {
	acct := new(MockAccount)
	acct.On("FreeBalance", mock.Anything, "USDT").Return(900.0, nil)
	acct.On("FreeBalance", mock.Anything, "BTC").Return(1.0, nil)

	now := time.Unix(1_700_000_000, 0)
	tr := NewTracker(acct, "USDT", 0)
	tr.SetClock(func() time.Time { return now })
	tr.RecordFill("BTCUSDT", types.SideBuy, 1, 100, 0)

	st, err := tr.State(context.Background(), "BTCUSDT", map[string]float64{"BTCUSDT": 100})
	require.NoError(t, err)
	assert.InDelta(t, 1000, st.Equity, 1e-9)
	assert.InDelta(t, 1000, st.DayStartEquity, 1e-9)
	assert.Equal(t, 1.0, st.BaseFree)

	st, err = tr.State(context.Background(), "BTCUSDT", map[string]float64{"BTCUSDT": 50})
	require.NoError(t, err)
	assert.InDelta(t, 950, st.Equity, 1e-9)
	assert.InDelta(t, 1000, st.DayStartEquity, 1e-9)
	assert.InDelta(t, 0.05, tr.Stats().MaxDrawdown, 1e-9)

	now = now.Add(24 * time.Hour)
	st, err = tr.State(context.Background(), "BTCUSDT", map[string]float64{"BTCUSDT": 50})
	require.NoError(t, err)
	assert.InDelta(t, 950, st.DayStartEquity, 1e-9)
}

func TestAttemptStats(t *testing.T) {
	tr := NewTracker(new(MockAccount), "USDT", 0)
	tr.RecordAttempt(100*time.Millisecond, false)
	tr.RecordAttempt(300*time.Millisecond, true)
	s := tr.Stats()
	assert.Equal(t, 200*time.Millisecond, s.AvgDuration)
	assert.InDelta(t, 0.5, s.ErrorRate, 1e-12)
	assert.Equal(t, 2, s.Attempts)
}
