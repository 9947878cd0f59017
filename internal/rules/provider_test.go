package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) SymbolInfo(ctx context.Context, symbol string) (types.SymbolRules, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(types.SymbolRules), args.Error(1)
}

var defaults = Defaults{TickSize: 0.0001, StepSize: 0.0001, MinNotional: 5, QuoteAsset: "USDT"}

func TestGetUsesDefaultsWithoutFetcher(t *testing.T) {
	p := NewProvider(defaults, nil, nil)
	r, err := p.Get(context.Background(), "sui/usdt")
	require.NoError(t, err)
	assert.Equal(t, types.SymbolRules{
		Symbol: "SUIUSDT", TickSize: 0.0001, StepSize: 0.0001, MinNotional: 5,
		QuoteAsset: "USDT", BaseAsset: "SUI",
	}, r)
}

func TestGetCachesExchangeRules(t *testing.T) {
	f := new(MockFetcher)
	f.On("SymbolInfo", mock.Anything, "BTCUSDT").Return(types.SymbolRules{
		TickSize: 0.01, StepSize: 0.00001, MinNotional: 10, QuoteAsset: "USDT", BaseAsset: "BTC",
	}, nil).Once()
	p := NewProvider(defaults, nil, f)

	for i := 0; i < 3; i++ {
		r, err := p.Get(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, 0.01, r.TickSize)
		assert.Equal(t, 10.0, r.MinNotional)
	}
	assert.Equal(t, int64(1), p.FetchCount())
	f.AssertExpectations(t)
}

func TestOverridesBeatExchangeAndDefaultsFillGaps(t *testing.T) {
	f := new(MockFetcher)
	f.On("SymbolInfo", mock.Anything, "ETHUSDT").Return(types.SymbolRules{TickSize: 0.01}, nil)
	f.On("SymbolInfo", mock.Anything, "ADAUSDT").Return(types.SymbolRules{}, errors.New("boom"))
	overrides := map[string]types.SymbolRules{"ETHUSDT": {StepSize: 0.001}}
	p := NewProvider(defaults, overrides, f)

	eth, err := p.Get(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.01, eth.TickSize)
	assert.Equal(t, 0.001, eth.StepSize)
	assert.Equal(t, 5.0, eth.MinNotional)

	ada, err := p.Get(context.Background(), "ADAUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0001, ada.TickSize)
}

func TestRefreshSwapsCache(t *testing.T) {
	f := new(MockFetcher)
	f.On("SymbolInfo", mock.Anything, "BTCUSDT").Return(types.SymbolRules{TickSize: 0.01}, nil).Once()
	f.On("SymbolInfo", mock.Anything, "BTCUSDT").Return(types.SymbolRules{TickSize: 0.1}, nil).Once()
	p := NewProvider(defaults, nil, f)

	r, _ := p.Get(context.Background(), "BTCUSDT")
	assert.Equal(t, 0.01, r.TickSize)
	p.Refresh(context.Background(), []string{"BTCUSDT"})
	r, _ = p.Get(context.Background(), "BTCUSDT")
	assert.Equal(t, 0.1, r.TickSize)
	f.AssertExpectations(t)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbols:
  - symbol: sui/usdt
    step_size: 0.1
    min_notional_quote: 5
`), 0o644))
	got, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, got["SUIUSDT"].StepSize)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("symbols:\n  - symbol: X\n    lot: 1\n"), 0o644))
	_, err = LoadOverrides(bad)
	assert.Error(t, err)

	missing, err := LoadOverrides(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
