package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spotpilot/internal/agent"
	"spotpilot/internal/config"
	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/gateway/paper"
	"spotpilot/internal/market"
	"spotpilot/internal/signal"
	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
app:
  dry_run: true
  log_level: warn
metrics:
  metrics_enabled: false
cycle:
  symbols: [BTCUSDT]
  max_retries: 2
  retry_wait_sec: 0
journal:
  journal_enabled: true
  journal_path: %s
%s`, filepath.Join(dir, "journal.db"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func paperExchange(cfg *config.Config) (exchange.Exchange, error) {
	ex := paper.New(paper.Config{
		QuoteAsset: cfg.Exchange.QuoteAsset,
		FeeRate:    cfg.Exchange.FeeRate,
		Balances:   map[string]float64{"USDT": 1000},
	}, nil)
	ex.SetPrice("BTCUSDT", 100)
	ex.SetPrice("ETHUSDT", 10)
	return ex, nil
}

func fixedSignal(buy float64) func(*config.Config, *market.Provider) (signal.Source, error) {
	return func(*config.Config, *market.Provider) (signal.Source, error) {
		return signal.SourceFunc(func(_ context.Context, sym string) (types.SignalBundle, error) {
			return types.SignalBundle{Symbol: sym, Timestamp: time.Now(), BuyScore: buy, SellScore: 0.1, RegimeOn: true}, nil
		}), nil
	}
}

func TestBuildAndRunCycleJournalsTrade(t *testing.T) {
	cfg := loadConfig(t, "")
	a, err := NewApp(cfg, WithExchange(paperExchange), WithSignalSource(fixedSignal(0.9)))
	require.NoError(t, err)
	t.Cleanup(a.close)

	require.NoError(t, a.Driver().RunCycle(context.Background()))

	rows, err := a.journal.Recent(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BUY", rows[0].Action)
	assert.Equal(t, string(types.StatusMockOK), rows[0].Status)
	// 1000 USDT × 5% / 100 = 0.5 BTC
	assert.InDelta(t, 0.5, rows[0].Quantity, 1e-9)

	// 冷却期内第二轮被拒。
	require.NoError(t, a.Driver().RunCycle(context.Background()))
	rows, err = a.journal.Recent(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, string(types.StatusCooldownReject), rows[0].Status)
}

func TestRunStopsWhenRetryBudgetExhausted(t *testing.T) {
	cfg := loadConfig(t, "")
	failing := func(*config.Config, *market.Provider) (signal.Source, error) {
		return signal.SourceFunc(func(context.Context, string) (types.SignalBundle, error) {
			return types.SignalBundle{}, errors.New("feed offline")
		}), nil
	}
	a, err := NewApp(cfg, WithExchange(paperExchange), WithSignalSource(failing))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = a.Run(ctx)
	require.ErrorIs(t, err, agent.ErrRetryBudgetExhausted)
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	cfg := loadConfig(t, "")
	a, err := NewApp(cfg, WithExchange(paperExchange), WithSignalSource(fixedSignal(0.2)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestBuildFailsOnExchangeError(t *testing.T) {
	cfg := loadConfig(t, "")
	_, err := NewApp(cfg, WithExchange(func(*config.Config) (exchange.Exchange, error) {
		return nil, errors.New("dial failed")
	}))
	assert.ErrorContains(t, err, "dial failed")
}

func TestServersAndSummary(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9999
	cfg.App.HTTPAddr = "127.0.0.1:0"
	a, err := NewApp(cfg, WithExchange(paperExchange), WithSignalSource(fixedSignal(0.9)))
	require.NoError(t, err)
	t.Cleanup(a.close)

	require.Len(t, a.servers, 2)
	assert.Equal(t, ":9999", a.servers[0].Addr())
	text := strings.Join(a.Summary.Lines(), "\n")
	assert.Contains(t, text, "paper")
	assert.Contains(t, text, "dry_run")
	assert.Contains(t, text, "BTCUSDT")
	assert.Contains(t, text, "journal ")
}

func TestApplyReloadUpdatesSymbols(t *testing.T) {
	cfg := loadConfig(t, "")
	a, err := NewApp(cfg, WithExchange(paperExchange), WithSignalSource(fixedSignal(0.2)))
	require.NoError(t, err)
	t.Cleanup(a.close)

	next := *cfg
	next.Cycle.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	next.App.LogLevel = "error"
	a.applyReload(&next)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, a.Driver().Symbols())
	assert.Equal(t, "error", a.cfg.App.LogLevel)
}

func TestUnknownSignalSource(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.Signal.Source = "oracle"
	_, err := buildSignalSource(cfg, nil)
	assert.Error(t, err)
}
