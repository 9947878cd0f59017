package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultBinanceBaseURL     = "https://api.binance.com"
	defaultHTTPTimeoutSec     = 10
	defaultOrderTimeoutSec    = 5
	defaultRequestsPerSec     = 10
	defaultBookDepth          = 20
	defaultQuoteAsset         = "USDT"
	defaultFeeRate            = 0.001
	defaultBreakerThreshold   = 5
	defaultBreakerCooldownSec = 30
	defaultPaperQuoteBalance  = 1000
	defaultOrderType          = "MARKET"
	defaultTimeInForce        = "GTC"
	defaultMaxSlippagePct     = 0.005
	defaultFillTimeoutSec     = 10
	defaultFillPollMs         = 500
	defaultTickSize           = 0.0001
	defaultStepSize           = 0.0001
	defaultMinNotional        = 5
	defaultRulesRefreshSec    = 3600
	defaultDailyLossLimitPct  = 0.05
	defaultMaxTotalExposure   = 0.8
	defaultMaxSymbolExposure  = 0.3
	defaultMaxTradesPerHour   = 20
	defaultMaxTradesPerDay    = 50
	defaultMinTradeSpacingSec = 60
	defaultMaxAllInCostPct    = 0.01
	defaultMaxSpreadPct       = 0.005
	defaultMaxImpactPct       = 0.01
	defaultPositionSizePct    = 0.05
	defaultCycleIntervalSec   = 60
	defaultJitterMaxSec       = 5
	defaultHeartbeatSec       = 300
	defaultMaxRetries         = 5
	defaultRetryWaitSec       = 10
	defaultSignalConcurrency  = 4
	defaultMetricsPort        = 9108
	defaultStealthMinMs       = 50
	defaultStealthMaxMs       = 400
	defaultStealthBudgetMs    = 1500
	defaultSignalSource       = "technical"
	defaultKlineInterval      = "15m"
	defaultKlineLimit         = 200
	defaultEMAFast            = 12
	defaultEMASlow            = 26
	defaultRSIPeriod          = 14
	defaultATRPeriod          = 14
	defaultMaxVolatility      = 0.05
	defaultJournalPath        = "data/spotpilot.db"
	defaultKafkaTopic         = "spotpilot.orders"
)

var defaultSymbols = []string{"BTCUSDT", "ETHUSDT"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Execution.applyDefaults(keys)
	c.Rules.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Sizing.applyDefaults(keys)
	c.Cycle.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
	c.Stealth.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
	c.Events.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, "text"),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.binance_base_url", &e.BinanceBaseURL, defaultBinanceBaseURL),
		stringFieldDefault("exchange.quote_asset", &e.QuoteAsset, defaultQuoteAsset),
		intFieldDefault("exchange.http_timeout_sec", &e.HTTPTimeoutSec, defaultHTTPTimeoutSec),
		intFieldDefault("exchange.order_timeout_sec", &e.OrderTimeoutSec, defaultOrderTimeoutSec),
		floatFieldDefault("exchange.requests_per_sec", &e.RequestsPerSec, defaultRequestsPerSec),
		intFieldDefault("exchange.book_depth", &e.BookDepth, defaultBookDepth),
		floatFieldDefault("exchange.fee_rate", &e.FeeRate, defaultFeeRate),
		intFieldDefault("exchange.breaker_threshold", &e.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("exchange.breaker_cooldown_sec", &e.BreakerCooldownSec, defaultBreakerCooldownSec),
		floatFieldDefault("exchange.paper_quote_balance", &e.PaperQuoteBalance, defaultPaperQuoteBalance),
	)
	e.QuoteAsset = strings.ToUpper(strings.TrimSpace(e.QuoteAsset))
}

func (e *ExecutionConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("execution.order_type", &e.OrderType, defaultOrderType),
		stringFieldDefault("execution.time_in_force", &e.TimeInForce, defaultTimeInForce),
		floatFieldDefault("execution.max_slippage_pct", &e.MaxSlippagePct, defaultMaxSlippagePct),
		boolFieldDefault("execution.allow_partial", &e.AllowPartial, true),
		intFieldDefault("execution.fill_timeout_sec", &e.FillTimeoutSec, defaultFillTimeoutSec),
		intFieldDefault("execution.fill_poll_ms", &e.FillPollMs, defaultFillPollMs),
	)
	e.OrderType = strings.ToUpper(strings.TrimSpace(e.OrderType))
	e.TimeInForce = strings.ToUpper(strings.TrimSpace(e.TimeInForce))
}

func (r *RulesConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("rules.default_tick_size", &r.DefaultTickSize, defaultTickSize),
		floatFieldDefault("rules.default_step_size", &r.DefaultStepSize, defaultStepSize),
		floatFieldDefault("rules.default_min_notional_quote", &r.DefaultMinNotional, defaultMinNotional),
		intFieldDefault("rules.refresh_sec", &r.RefreshSec, defaultRulesRefreshSec),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.daily_loss_limit_pct", &r.DailyLossLimitPct, defaultDailyLossLimitPct),
		floatFieldDefault("risk.max_total_exposure_pct", &r.MaxTotalExposurePct, defaultMaxTotalExposure),
		floatFieldDefault("risk.max_symbol_exposure_pct", &r.MaxSymbolExposurePct, defaultMaxSymbolExposure),
		intFieldDefault("risk.max_trades_per_hour", &r.MaxTradesPerHour, defaultMaxTradesPerHour),
		intFieldDefault("risk.max_trades_per_day", &r.MaxTradesPerDay, defaultMaxTradesPerDay),
		floatFieldDefault("risk.min_trade_spacing_sec", &r.MinTradeSpacingSec, defaultMinTradeSpacingSec),
		floatFieldDefault("risk.max_all_in_cost_pct", &r.MaxAllInCostPct, defaultMaxAllInCostPct),
		floatFieldDefault("risk.max_spread_pct", &r.MaxSpreadPct, defaultMaxSpreadPct),
		floatFieldDefault("risk.max_impact_pct", &r.MaxImpactPct, defaultMaxImpactPct),
	)
	if r.DefaultStopLossPct < 0 {
		r.DefaultStopLossPct = 0
	}
	if r.DefaultTakeProfitPct < 0 {
		r.DefaultTakeProfitPct = 0
	}
}

func (s *SizingConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("sizing.position_size_pct", &s.PositionSizePct, defaultPositionSizePct),
		boolFieldDefault("sizing.allow_min_notional_autoscale", &s.AllowMinNotionalAutoscale, true),
	)
}

func (c *CycleConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "cycle.symbols",
			need:  func() bool { return len(c.Symbols) == 0 },
			apply: func() { c.Symbols = append([]string(nil), defaultSymbols...) },
		},
		floatFieldDefault("cycle.cycle_interval_sec", &c.CycleIntervalSec, defaultCycleIntervalSec),
		floatFieldDefault("cycle.cycle_jitter_max_sec", &c.CycleJitterMaxSec, defaultJitterMaxSec),
		floatFieldDefault("cycle.heartbeat_interval_sec", &c.HeartbeatIntervalSec, defaultHeartbeatSec),
		intFieldDefault("cycle.max_retries", &c.MaxRetries, defaultMaxRetries),
		floatFieldDefault("cycle.retry_wait_sec", &c.RetryWaitSec, defaultRetryWaitSec),
		intFieldDefault("cycle.signal_concurrency", &c.SignalConcurrency, defaultSignalConcurrency),
	)
	c.Symbols = normalizeSymbols(c.Symbols)
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("metrics.metrics_enabled", &m.Enabled, true),
		intFieldDefault("metrics.metrics_port", &m.Port, defaultMetricsPort),
	)
}

func (s *StealthConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("stealth.stealth_min_delay_ms", &s.MinDelayMs, defaultStealthMinMs),
		intFieldDefault("stealth.stealth_max_delay_ms", &s.MaxDelayMs, defaultStealthMaxMs),
		intFieldDefault("stealth.precheck_submit_budget_ms", &s.PrecheckSubmitBudgetMs, defaultStealthBudgetMs),
	)
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("signal.signal_source", &s.Source, defaultSignalSource),
		stringFieldDefault("signal.kline_interval", &s.KlineInterval, defaultKlineInterval),
		intFieldDefault("signal.kline_limit", &s.KlineLimit, defaultKlineLimit),
		intFieldDefault("signal.ema_fast", &s.EMAFast, defaultEMAFast),
		intFieldDefault("signal.ema_slow", &s.EMASlow, defaultEMASlow),
		intFieldDefault("signal.rsi_period", &s.RSIPeriod, defaultRSIPeriod),
		intFieldDefault("signal.atr_period", &s.ATRPeriod, defaultATRPeriod),
		floatFieldDefault("signal.max_volatility", &s.MaxVolatility, defaultMaxVolatility),
	)
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("journal.journal_path", &j.Path, defaultJournalPath),
	)
}

func (e *EventsConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("events.kafka_topic", &e.KafkaTopic, defaultKafkaTopic),
	)
	e.KafkaBrokers = normalizeList(e.KafkaBrokers)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func normalizeSymbols(in []string) []string {
	out := normalizeList(in)
	for i := range out {
		out[i] = strings.ToUpper(strings.ReplaceAll(out[i], "/", ""))
	}
	return dedupe(out)
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
