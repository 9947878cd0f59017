package config

import (
	"strings"
	"time"
)

// Config 是 spotpilot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Execution ExecutionConfig `toml:"execution"`
	Rules     RulesConfig     `toml:"rules"`
	Risk      RiskConfig      `toml:"risk"`
	Sizing    SizingConfig    `toml:"sizing"`
	Cycle     CycleConfig     `toml:"cycle"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Stealth   StealthConfig   `toml:"stealth"`
	Signal    SignalConfig    `toml:"signal"`
	Journal   JournalConfig   `toml:"journal"`
	Events    EventsConfig    `toml:"events"`

	// TestSkipCooldown 仅供测试绕过冷却闸门。
	TestSkipCooldown bool `toml:"test_skip_cooldown"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	// LogFormat 为 text 或 json。
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
	// DryRun 使用内存撮合，结果状态为 mock-ok。
	DryRun bool `toml:"dry_run"`
}

// ExchangeConfig 描述交易所连接参数。
type ExchangeConfig struct {
	BinanceBaseURL     string  `toml:"binance_base_url"`
	APIKey             string  `toml:"api_key"`
	APISecret          string  `toml:"api_secret"`
	ProxyURL           string  `toml:"proxy_url"`
	HTTPTimeoutSec     int     `toml:"http_timeout_sec"`
	OrderTimeoutSec    int     `toml:"order_timeout_sec"`
	RequestsPerSec     float64 `toml:"requests_per_sec"`
	BookDepth          int     `toml:"book_depth"`
	QuoteAsset         string  `toml:"quote_asset"`
	FeeRate            float64 `toml:"fee_rate"`
	BreakerThreshold   int     `toml:"breaker_threshold"`
	BreakerCooldownSec int     `toml:"breaker_cooldown_sec"`
	PaperQuoteBalance  float64 `toml:"paper_quote_balance"`
}

func (e ExchangeConfig) HTTPTimeout() time.Duration {
	return time.Duration(e.HTTPTimeoutSec) * time.Second
}

func (e ExchangeConfig) OrderTimeout() time.Duration {
	return time.Duration(e.OrderTimeoutSec) * time.Second
}

func (e ExchangeConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSec) * time.Second
}

// ExecutionConfig 为下单偏好，由 Adjuster 叠加到计划上。
type ExecutionConfig struct {
	OrderType      string  `toml:"order_type"`
	TimeInForce    string  `toml:"time_in_force"`
	PostOnly       bool    `toml:"post_only"`
	MaxSlippagePct float64 `toml:"max_slippage_pct"`
	AllowPartial   bool    `toml:"allow_partial"`
	FillTimeoutSec int     `toml:"fill_timeout_sec"`
	FillPollMs     int     `toml:"fill_poll_ms"`
	CancelOnStop   bool    `toml:"cancel_on_stop"`
}

func (e ExecutionConfig) FillTimeout() time.Duration {
	return time.Duration(e.FillTimeoutSec) * time.Second
}

func (e ExecutionConfig) FillPoll() time.Duration {
	return time.Duration(e.FillPollMs) * time.Millisecond
}

type RulesConfig struct {
	DefaultTickSize    float64 `toml:"default_tick_size"`
	DefaultStepSize    float64 `toml:"default_step_size"`
	DefaultMinNotional float64 `toml:"default_min_notional_quote"`
	RulesFile          string  `toml:"rules_file"`
	RefreshSec         int     `toml:"refresh_sec"`
}

// RiskConfig 中所有 *_pct 字段均为小数比例（0.01 = 1%）。
type RiskConfig struct {
	DailyLossLimitPct    float64 `toml:"daily_loss_limit_pct"`
	MaxTotalExposurePct  float64 `toml:"max_total_exposure_pct"`
	MaxSymbolExposurePct float64 `toml:"max_symbol_exposure_pct"`
	MaxTradesPerHour     int     `toml:"max_trades_per_hour"`
	MaxTradesPerDay      int     `toml:"max_trades_per_day"`
	MinTradeSpacingSec   float64 `toml:"min_trade_spacing_sec"`
	MaxAllInCostPct      float64 `toml:"max_all_in_cost_pct"`
	MaxSpreadPct         float64 `toml:"max_spread_pct"`
	MaxImpactPct         float64 `toml:"max_impact_pct"`
	DefaultStopLossPct   float64 `toml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `toml:"default_take_profit_pct"`
	TZOffsetHours        float64 `toml:"tz_offset_hours"`
}

func (r RiskConfig) MinSpacing() time.Duration {
	return time.Duration(r.MinTradeSpacingSec * float64(time.Second))
}

func (r RiskConfig) TZOffset() time.Duration {
	return time.Duration(r.TZOffsetHours * float64(time.Hour))
}

type SizingConfig struct {
	PositionSizePct           float64 `toml:"position_size_pct"`
	AllowMinNotionalAutoscale bool    `toml:"allow_min_notional_autoscale"`
}

// CycleConfig 控制交易循环节奏与容错。
type CycleConfig struct {
	Symbols              []string `toml:"symbols"`
	CycleIntervalSec     float64  `toml:"cycle_interval_sec"`
	CycleJitterMinSec    float64  `toml:"cycle_jitter_min_sec"`
	CycleJitterMaxSec    float64  `toml:"cycle_jitter_max_sec"`
	HeartbeatIntervalSec float64  `toml:"heartbeat_interval_sec"`
	MaxRetries           int      `toml:"max_retries"`
	RetryWaitSec         float64  `toml:"retry_wait_sec"`
	SignalConcurrency    int      `toml:"signal_concurrency"`
}

func (c CycleConfig) Interval() time.Duration  { return seconds(c.CycleIntervalSec) }
func (c CycleConfig) JitterMin() time.Duration { return seconds(c.CycleJitterMinSec) }
func (c CycleConfig) JitterMax() time.Duration { return seconds(c.CycleJitterMaxSec) }
func (c CycleConfig) Heartbeat() time.Duration { return seconds(c.HeartbeatIntervalSec) }
func (c CycleConfig) RetryWait() time.Duration { return seconds(c.RetryWaitSec) }

type MetricsConfig struct {
	Enabled bool `toml:"metrics_enabled"`
	Port    int  `toml:"metrics_port"`
}

// StealthConfig 控制提交前的随机延迟，总时长受 PrecheckSubmitBudgetMs 约束。
type StealthConfig struct {
	Enabled                bool `toml:"stealth_enabled"`
	MinDelayMs             int  `toml:"stealth_min_delay_ms"`
	MaxDelayMs             int  `toml:"stealth_max_delay_ms"`
	PrecheckSubmitBudgetMs int  `toml:"precheck_submit_budget_ms"`
}

type SignalConfig struct {
	Source        string `toml:"signal_source"`
	URL           string `toml:"signal_url"`
	KlineInterval string `toml:"kline_interval"`
	KlineLimit    int    `toml:"kline_limit"`
	EMAFast       int    `toml:"ema_fast"`
	EMASlow       int    `toml:"ema_slow"`
	RSIPeriod     int    `toml:"rsi_period"`
	ATRPeriod     int    `toml:"atr_period"`
	// MaxVolatility 是 ATR/价格 上限，超过时 regime 关闭。
	MaxVolatility float64 `toml:"max_volatility"`
}

type JournalConfig struct {
	Enabled bool   `toml:"journal_enabled"`
	Path    string `toml:"journal_path"`
}

type EventsConfig struct {
	KafkaEnabled bool     `toml:"kafka_enabled"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
