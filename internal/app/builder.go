package app

import (
	"context"
	"fmt"
	"strings"

	"spotpilot/internal/account"
	"spotpilot/internal/agent"
	"spotpilot/internal/config"
	"spotpilot/internal/events"
	"spotpilot/internal/executor"
	"spotpilot/internal/gateway"
	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/logger"
	"spotpilot/internal/market"
	"spotpilot/internal/metrics"
	"spotpilot/internal/pipeline"
	"spotpilot/internal/plan"
	"spotpilot/internal/registry"
	"spotpilot/internal/risk"
	"spotpilot/internal/rules"
	"spotpilot/internal/signal"
	"spotpilot/internal/store"
	livehttp "spotpilot/internal/transport/http/live"
	"spotpilot/internal/types"
)

// AppBuilder 按 config → 交易所 → 规则/行情/账户 → 注册表/指标 → 校验/执行 → 流水线 → 循环 的顺序装配。
type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	exchangeFn func(*config.Config) (exchange.Exchange, error)
	signalFn   func(*config.Config, *market.Provider) (signal.Source, error)
}

type AppBuilderOption func(*AppBuilder)

// WithExchange 替换交易所构造（测试注入模拟交易所）。
func WithExchange(fn func(*config.Config) (exchange.Exchange, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.exchangeFn = fn
		}
	}
}

// WithSignalSource 替换信号源构造。
func WithSignalSource(fn func(*config.Config, *market.Provider) (signal.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.signalFn = fn
		}
	}
}

// WithConfigPath 设置热加载监听的配置文件。
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.cfgPath = strings.TrimSpace(path) }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		exchangeFn: gateway.NewExchangeFromConfig,
		signalFn:   buildSignalSource,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	ex, err := b.exchangeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("init exchange failed: %w", err)
	}

	overrides, err := rules.LoadOverrides(cfg.Rules.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules overrides failed: %w", err)
	}
	rulesProvider := rules.NewProvider(rules.Defaults{
		TickSize:    cfg.Rules.DefaultTickSize,
		StepSize:    cfg.Rules.DefaultStepSize,
		MinNotional: cfg.Rules.DefaultMinNotional,
		QuoteAsset:  cfg.Exchange.QuoteAsset,
	}, overrides, ex)

	marketProvider := market.NewProvider(ex, cfg.Exchange.BookDepth)
	tracker := account.NewTracker(ex, cfg.Exchange.QuoteAsset, cfg.Risk.TZOffset())
	reg := registry.New(registry.Limits{
		MinSpacing:       cfg.Risk.MinSpacing(),
		MaxTradesPerDay:  cfg.Risk.MaxTradesPerDay,
		MaxTradesPerHour: cfg.Risk.MaxTradesPerHour,
		TZOffset:         cfg.Risk.TZOffset(),
	})
	sink := metrics.New()

	validator := risk.NewValidator(riskConfig(cfg), reg)
	exec := executor.New(executor.Config{
		OrderTimeout: cfg.Exchange.OrderTimeout(),
		FillTimeout:  cfg.Execution.FillTimeout(),
		FillPoll:     cfg.Execution.FillPoll(),
		AllowPartial: cfg.Execution.AllowPartial,
		DryRun:       cfg.App.DryRun,
		QuoteAsset:   cfg.Exchange.QuoteAsset,
		FeeRate:      cfg.Exchange.FeeRate,
		Stealth: executor.Stealth{
			Enabled:  cfg.Stealth.Enabled,
			MinDelay: msDuration(cfg.Stealth.MinDelayMs),
			MaxDelay: msDuration(cfg.Stealth.MaxDelayMs),
			Budget:   msDuration(cfg.Stealth.PrecheckSubmitBudgetMs),
		},
	}, ex, marketProvider, validator, reg, sink)
	exec.SetFillObserver(tracker)

	pipe := pipeline.New(pipeline.Deps{
		Validator: validator,
		Adjuster: plan.NewAdjuster(plan.Preferences{
			OrderType:      types.OrderType(strings.ToUpper(cfg.Execution.OrderType)),
			TimeInForce:    types.TimeInForce(strings.ToUpper(cfg.Execution.TimeInForce)),
			PostOnly:       cfg.Execution.PostOnly,
			MaxSlippagePct: cfg.Execution.MaxSlippagePct,
		}),
		Executor: exec,
		Rules:    rulesProvider,
		Market:   marketProvider,
		Account:  tracker,
		Ledger:   reg,
		Recorder: sink,
	})

	a := &App{
		cfg:      cfg,
		cfgPath:  b.cfgPath,
		exchange: ex,
		rules:    rulesProvider,
		metrics:  sink,
	}

	if cfg.Journal.Enabled {
		j, err := store.Open(cfg.Journal.Path, cfg.Risk.TZOffset())
		if err != nil {
			return nil, fmt.Errorf("open journal failed: %w", err)
		}
		pipe.AddSink(j)
		a.journal = j
		a.closers = append(a.closers, j.Close)
	}
	if cfg.Events.KafkaEnabled {
		pub, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init kafka publisher failed: %w", err)
		}
		pipe.AddSink(pub)
		a.closers = append(a.closers, pub.Close)
	}

	src, err := b.signalFn(cfg, marketProvider)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init signal source failed: %w", err)
	}
	driver, err := agent.New(agent.Config{
		Symbols:           cfg.Cycle.Symbols,
		Interval:          cfg.Cycle.Interval(),
		JitterMin:         cfg.Cycle.JitterMin(),
		JitterMax:         cfg.Cycle.JitterMax(),
		Heartbeat:         cfg.Cycle.Heartbeat(),
		MaxRetries:        cfg.Cycle.MaxRetries,
		RetryWait:         cfg.Cycle.RetryWait(),
		SignalConcurrency: cfg.Cycle.SignalConcurrency,
		CancelOnStop:      cfg.Execution.CancelOnStop,
	}, agent.Deps{
		Signals:  signal.Validated(src),
		Runner:   pipe,
		Stats:    tracker,
		Canceler: ex,
		Metrics:  sink,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.driver = driver

	if err := b.buildServers(a, tracker, reg, marketProvider); err != nil {
		a.close()
		return nil, err
	}
	a.Summary = newStartupSummary(cfg, ex.Name(), a)
	return a, nil
}

func (b *AppBuilder) buildServers(a *App, tracker *account.Tracker, reg *registry.Registry, mkt *market.Provider) error {
	cfg := b.cfg
	if cfg.Metrics.Enabled {
		srv, err := livehttp.NewServer(livehttp.ServerConfig{
			Addr:     fmt.Sprintf(":%d", cfg.Metrics.Port),
			Metrics:  a.metrics.Handler(),
			Observer: a.metrics,
		})
		if err != nil {
			return fmt.Errorf("init metrics server failed: %w", err)
		}
		a.servers = append(a.servers, srv)
	}
	if addr := strings.TrimSpace(cfg.App.HTTPAddr); addr != "" {
		srvCfg := livehttp.ServerConfig{
			Addr:     addr,
			Status:   tracker,
			Registry: reg,
			Observer: a.metrics,
			Symbols:  a.driver.Symbols,
			Marks:    mkt.Marks,
		}
		if a.journal != nil {
			srvCfg.Journal = a.journal
		}
		srv, err := livehttp.NewServer(srvCfg)
		if err != nil {
			return fmt.Errorf("init status server failed: %w", err)
		}
		a.servers = append(a.servers, srv)
	}
	return nil
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		FeeRate:              cfg.Exchange.FeeRate,
		MaxSlippagePct:       cfg.Execution.MaxSlippagePct,
		MaxSpreadPct:         cfg.Risk.MaxSpreadPct,
		MaxImpactPct:         cfg.Risk.MaxImpactPct,
		MaxAllInCostPct:      cfg.Risk.MaxAllInCostPct,
		DailyLossLimitPct:    cfg.Risk.DailyLossLimitPct,
		MaxTotalExposurePct:  cfg.Risk.MaxTotalExposurePct,
		MaxSymbolExposurePct: cfg.Risk.MaxSymbolExposurePct,
		PositionSizePct:      cfg.Sizing.PositionSizePct,
		AllowAutoscale:       cfg.Sizing.AllowMinNotionalAutoscale,
		DefaultStopLossPct:   cfg.Risk.DefaultStopLossPct,
		DefaultTakeProfitPct: cfg.Risk.DefaultTakeProfitPct,
		SkipCooldown:         cfg.TestSkipCooldown,
	}
}

func buildSignalSource(cfg *config.Config, mkt *market.Provider) (signal.Source, error) {
	sc := cfg.Signal
	switch sc.Source {
	case "http":
		logger.Infof("signal: http source %s", sc.URL)
		return signal.NewHTTPSource(sc.URL, cfg.Exchange.HTTPTimeout()), nil
	case "", "technical":
		return signal.NewTechnicalSource(mkt, signal.TechnicalConfig{
			Interval:      sc.KlineInterval,
			Limit:         sc.KlineLimit,
			EMAFast:       sc.EMAFast,
			EMASlow:       sc.EMASlow,
			RSIPeriod:     sc.RSIPeriod,
			ATRPeriod:     sc.ATRPeriod,
			MaxVolatility: sc.MaxVolatility,
		}), nil
	default:
		return nil, fmt.Errorf("unknown signal source %q", sc.Source)
	}
}
