package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"spotpilot/internal/pkg/interval"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"

	"github.com/markcheno/go-talib"
)

// KlineSource 提供已收盘的 K 线。
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
}

// TechnicalConfig 描述指标参数。
type TechnicalConfig struct {
	Interval  string
	Limit     int
	EMAFast   int
	EMASlow   int
	RSIPeriod int
	ATRPeriod int
	// TrendScale 是 EMA 偏离达到满分所需的比例。
	TrendScale float64
	// MaxVolatility 是 ATR/价格 的上限，超过时 regime 关闭。
	MaxVolatility float64
}

func (c TechnicalConfig) withDefaults() TechnicalConfig {
	if c.Interval == "" {
		c.Interval = "15m"
	}
	if c.EMAFast <= 0 {
		c.EMAFast = 12
	}
	if c.EMASlow <= 0 {
		c.EMASlow = 26
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.TrendScale <= 0 {
		c.TrendScale = 0.01
	}
	if c.MaxVolatility <= 0 {
		c.MaxVolatility = 0.05
	}
	if need := c.minCandles(); c.Limit < need {
		c.Limit = need * 2
	}
	return c
}

func (c TechnicalConfig) minCandles() int {
	n := c.EMASlow
	if c.RSIPeriod+1 > n {
		n = c.RSIPeriod + 1
	}
	if c.ATRPeriod+1 > n {
		n = c.ATRPeriod + 1
	}
	return n + 1
}

// TechnicalSource 用 EMA 趋势、RSI 动量与 ATR 波动率给出买卖分。
type TechnicalSource struct {
	klines KlineSource
	cfg    TechnicalConfig
	now    func() time.Time
}

func NewTechnicalSource(klines KlineSource, cfg TechnicalConfig) *TechnicalSource {
	return &TechnicalSource{klines: klines, cfg: cfg.withDefaults(), now: time.Now}
}

func (s *TechnicalSource) Produce(ctx context.Context, sym string) (types.SignalBundle, error) {
	sym = symbol.Normalize(sym)
	candles, err := s.klines.Klines(ctx, sym, s.cfg.Interval, s.cfg.Limit)
	if err != nil {
		return types.SignalBundle{}, fmt.Errorf("signal: klines %s: %w", sym, err)
	}
	if len(candles) < s.cfg.minCandles() {
		return types.SignalBundle{}, fmt.Errorf("%w: %s has %d, need %d", ErrNotEnoughData, sym, len(candles), s.cfg.minCandles())
	}
	if err := s.checkFresh(sym, candles[len(candles)-1]); err != nil {
		return types.SignalBundle{}, err
	}
	return s.score(sym, candles), nil
}

// checkFresh 拒绝落后超过两个周期的 K 线；CloseTime 缺失时不检查。
func (s *TechnicalSource) checkFresh(sym string, last types.Candle) error {
	step, ok := interval.Parse(s.cfg.Interval)
	if !ok || last.CloseTime <= 0 {
		return nil
	}
	lag := s.now().Sub(time.UnixMilli(last.CloseTime))
	if lag > 2*step {
		return fmt.Errorf("%w: %s last candle closed %s ago", ErrStaleData, sym, lag.Truncate(time.Second))
	}
	return nil
}

func (s *TechnicalSource) score(sym string, candles []types.Candle) types.SignalBundle {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	last := closes[n-1]
	emaFast := lastNonZero(talib.Ema(closes, s.cfg.EMAFast))
	emaSlow := lastNonZero(talib.Ema(closes, s.cfg.EMASlow))
	rsi := lastValid(talib.Rsi(closes, s.cfg.RSIPeriod))
	atr := lastValid(talib.Atr(highs, lows, closes, s.cfg.ATRPeriod))

	trend := 0.0
	if emaSlow > 0 {
		trend = clamp((emaFast-emaSlow)/emaSlow/s.cfg.TrendScale, -1, 1)
	}
	momentum := clamp((rsi-50)/50, -1, 1)
	buy := clamp(0.5+0.3*trend+0.2*momentum, 0, 1)
	sell := clamp(0.5-0.3*trend-0.2*momentum, 0, 1)
	// 超买不追，超卖不杀。
	if rsi >= 70 {
		buy *= 0.5
	}
	if rsi <= 30 {
		sell *= 0.5
	}
	volatility := 0.0
	if last > 0 {
		volatility = atr / last
	}
	extras := map[string]any{
		"source":   "technical",
		"interval": s.cfg.Interval,
		"ema_fast": round4(emaFast),
		"ema_slow": round4(emaSlow),
		"rsi":      round4(rsi),
		"atr":      atr,
		"close":    last,
	}
	// 量价背离时削弱同向分数。
	if flow, ok := ComputeOrderFlow(candles); ok {
		switch flow.Divergence {
		case "bearish":
			buy *= 0.8
		case "bullish":
			sell *= 0.8
		}
		extras["cvd_normalized"] = flow.Normalized
		extras["cvd_momentum"] = flow.Momentum
		extras["cvd_divergence"] = flow.Divergence
	}
	return types.SignalBundle{
		Symbol:     sym,
		Timestamp:  s.now().UTC(),
		BuyScore:   round4(buy),
		SellScore:  round4(sell),
		RegimeOn:   volatility <= s.cfg.MaxVolatility,
		Volatility: round4(volatility),
		Extras:     extras,
	}
}

func lastNonZero(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) <= 1e-12 {
			continue
		}
		return v
	}
	return 0
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
