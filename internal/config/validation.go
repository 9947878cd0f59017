package config

import (
	"fmt"
	"strings"

	"spotpilot/internal/pkg/interval"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	switch strings.ToLower(c.App.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", c.App.LogFormat)
	}
	if err := c.Exchange.validate(c.App.DryRun); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Rules.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	if err := c.Cycle.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	if err := c.Stealth.validate(); err != nil {
		return err
	}
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if err := c.Journal.validate(); err != nil {
		return err
	}
	return c.Events.validate()
}

func (e *ExchangeConfig) validate(dryRun bool) error {
	if !dryRun {
		if strings.TrimSpace(e.APIKey) == "" || strings.TrimSpace(e.APISecret) == "" {
			return fmt.Errorf("exchange.api_key and exchange.api_secret are required unless app.dry_run is set")
		}
	}
	if e.FeeRate < 0 || e.FeeRate >= 0.1 {
		return fmt.Errorf("exchange.fee_rate must be within [0, 0.1)")
	}
	if e.BookDepth > 5000 {
		return fmt.Errorf("exchange.book_depth must be <= 5000")
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	switch e.OrderType {
	case "MARKET", "LIMIT":
	default:
		return fmt.Errorf("execution.order_type must be MARKET or LIMIT, got %q", e.OrderType)
	}
	switch e.TimeInForce {
	case "GTC", "IOC":
	default:
		return fmt.Errorf("execution.time_in_force must be GTC or IOC, got %q", e.TimeInForce)
	}
	if e.PostOnly && e.OrderType == "MARKET" {
		return fmt.Errorf("execution.post_only cannot be combined with order_type=MARKET")
	}
	if e.PostOnly && e.TimeInForce == "IOC" {
		return fmt.Errorf("execution.post_only cannot be combined with time_in_force=IOC")
	}
	if e.MaxSlippagePct < 0 || e.MaxSlippagePct >= 1 {
		return fmt.Errorf("execution.max_slippage_pct must be within [0, 1)")
	}
	return nil
}

func (r *RulesConfig) validate() error {
	if r.DefaultTickSize <= 0 || r.DefaultStepSize <= 0 || r.DefaultMinNotional <= 0 {
		return fmt.Errorf("rules defaults (tick, step, min_notional) must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	pcts := map[string]float64{
		"risk.daily_loss_limit_pct":    r.DailyLossLimitPct,
		"risk.max_total_exposure_pct":  r.MaxTotalExposurePct,
		"risk.max_symbol_exposure_pct": r.MaxSymbolExposurePct,
		"risk.max_all_in_cost_pct":     r.MaxAllInCostPct,
		"risk.max_spread_pct":          r.MaxSpreadPct,
		"risk.max_impact_pct":          r.MaxImpactPct,
	}
	for key, v := range pcts {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1]", key)
		}
	}
	if r.MaxSymbolExposurePct > r.MaxTotalExposurePct {
		return fmt.Errorf("risk.max_symbol_exposure_pct cannot exceed risk.max_total_exposure_pct")
	}
	if r.MaxTradesPerDay < 1 || r.MaxTradesPerHour < 1 {
		return fmt.Errorf("risk.max_trades_per_day and risk.max_trades_per_hour must be >= 1")
	}
	if r.MinTradeSpacingSec < 0 {
		return fmt.Errorf("risk.min_trade_spacing_sec must be >= 0")
	}
	if r.TZOffsetHours < -14 || r.TZOffsetHours > 14 {
		return fmt.Errorf("risk.tz_offset_hours must be within [-14, 14]")
	}
	return nil
}

func (s *SizingConfig) validate() error {
	if s.PositionSizePct <= 0 || s.PositionSizePct > 1 {
		return fmt.Errorf("sizing.position_size_pct must be within (0, 1]")
	}
	return nil
}

func (c *CycleConfig) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("cycle.symbols requires at least one symbol")
	}
	if c.CycleIntervalSec <= 0 {
		return fmt.Errorf("cycle.cycle_interval_sec must be > 0")
	}
	if c.CycleJitterMinSec < 0 || c.CycleJitterMaxSec < c.CycleJitterMinSec {
		return fmt.Errorf("cycle jitter requires 0 <= cycle_jitter_min_sec <= cycle_jitter_max_sec")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("cycle.max_retries must be >= 0")
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.Enabled && (m.Port <= 0 || m.Port > 65535) {
		return fmt.Errorf("metrics.metrics_port must be within 1..65535")
	}
	return nil
}

func (s *StealthConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.MinDelayMs < 0 || s.MaxDelayMs < s.MinDelayMs {
		return fmt.Errorf("stealth delays require 0 <= stealth_min_delay_ms <= stealth_max_delay_ms")
	}
	return nil
}

func (s *SignalConfig) validate() error {
	switch s.Source {
	case "technical":
		if s.EMAFast >= s.EMASlow {
			return fmt.Errorf("signal.ema_fast must be < signal.ema_slow")
		}
		if s.KlineLimit <= s.EMASlow {
			return fmt.Errorf("signal.kline_limit must exceed signal.ema_slow")
		}
		if s.MaxVolatility < 0 {
			return fmt.Errorf("signal.max_volatility must be >= 0")
		}
		if !interval.Supported(s.KlineInterval) {
			return fmt.Errorf("signal.kline_interval %q is not a supported kline interval", s.KlineInterval)
		}
	case "http":
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("signal.signal_url is required when signal_source=http")
		}
	default:
		return fmt.Errorf("signal.signal_source must be technical or http, got %q", s.Source)
	}
	return nil
}

func (j *JournalConfig) validate() error {
	if j.Enabled && strings.TrimSpace(j.Path) == "" {
		return fmt.Errorf("journal.journal_path is required when journal is enabled")
	}
	return nil
}

func (e *EventsConfig) validate() error {
	if !e.KafkaEnabled {
		return nil
	}
	if len(e.KafkaBrokers) == 0 {
		return fmt.Errorf("events.kafka_brokers is required when kafka is enabled")
	}
	if strings.TrimSpace(e.KafkaTopic) == "" {
		return fmt.Errorf("events.kafka_topic is required when kafka is enabled")
	}
	return nil
}
