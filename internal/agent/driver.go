// Package agent 驱动交易循环：拉取信号、逐币种跑下单流水线、带抖动休眠并输出心跳。
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"spotpilot/internal/account"
	"spotpilot/internal/logger"
	"spotpilot/internal/outcome"
	"spotpilot/internal/pipeline"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/signal"
	"spotpilot/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrRetryBudgetExhausted 表示外层循环连续失败次数超过 max_retries。
var ErrRetryBudgetExhausted = errors.New("agent: retry budget exhausted")

// Runner 处理单个信号。
type Runner interface {
	Run(ctx context.Context, sig types.SignalBundle) (pipeline.Attempt, error)
}

// StatsSource 提供心跳统计。
type StatsSource interface {
	Stats() account.Stats
}

// OrderCanceler 在停止时撤销挂单。
type OrderCanceler interface {
	CancelOpenOrders(ctx context.Context, symbol string) error
}

// CycleRecorder 是循环用到的指标面。
type CycleRecorder interface {
	IncCycle()
	IncException(typ string)
}

// Config 控制循环节奏与容错。
type Config struct {
	Symbols           []string
	Interval          time.Duration
	JitterMin         time.Duration
	JitterMax         time.Duration
	Heartbeat         time.Duration
	MaxRetries        int
	RetryWait         time.Duration
	SignalConcurrency int
	CancelOnStop      bool
}

type Driver struct {
	cfg      Config
	signals  signal.Source
	runner   Runner
	stats    StatsSource
	canceler OrderCanceler
	metrics  CycleRecorder

	mu      sync.RWMutex
	symbols []string

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(lo, hi time.Duration) time.Duration
	started time.Time
	cycles  atomic.Int64
}

// Deps 中 Stats/Canceler/Metrics 可为空。
type Deps struct {
	Signals  signal.Source
	Runner   Runner
	Stats    StatsSource
	Canceler OrderCanceler
	Metrics  CycleRecorder
}

func New(cfg Config, deps Deps) (*Driver, error) {
	if deps.Signals == nil {
		return nil, fmt.Errorf("agent: signal source is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("agent: pipeline is required")
	}
	if cfg.SignalConcurrency <= 0 {
		cfg.SignalConcurrency = 1
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	d := &Driver{
		cfg:      cfg,
		signals:  deps.Signals,
		runner:   deps.Runner,
		stats:    deps.Stats,
		canceler: deps.Canceler,
		metrics:  deps.Metrics,
		now:      time.Now,
		sleep:    sleepCtx,
		jitter:   uniformJitter,
	}
	d.SetSymbols(cfg.Symbols)
	return d, nil
}

// SetSymbols 替换静态币种列表，下一轮生效（配置热加载调用）。
func (d *Driver) SetSymbols(symbols []string) {
	out := symbol.NormalizeList(symbols)
	d.mu.Lock()
	d.symbols = out
	d.mu.Unlock()
}

func (d *Driver) Symbols() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.symbols...)
}

// Run 循环直到 ctx 取消（返回 nil）或重试预算耗尽（返回 ErrRetryBudgetExhausted）。
func (d *Driver) Run(ctx context.Context) error {
	d.started = d.now()
	logger.Infof("agent: trade cycle started symbols=%v interval=%s jitter=[%s,%s]",
		d.Symbols(), d.cfg.Interval, d.cfg.JitterMin, d.cfg.JitterMax)
	beatCtx, stopBeat := context.WithCancel(ctx)
	beatDone := make(chan struct{})
	go func() {
		defer close(beatDone)
		d.heartbeatLoop(beatCtx)
	}()
	defer func() {
		stopBeat()
		<-beatDone
		d.stop()
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := d.safeCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			var pe *outcome.PanicError
			if d.metrics != nil && errors.As(err, &pe) {
				d.metrics.IncException(outcome.TypePanic)
			}
			logger.Errorf("agent: cycle failed (%d/%d): %v", failures, d.cfg.MaxRetries, err)
			if d.cfg.MaxRetries > 0 && failures >= d.cfg.MaxRetries {
				return fmt.Errorf("%w after %d consecutive failures: %v", ErrRetryBudgetExhausted, failures, err)
			}
			if d.sleep(ctx, d.cfg.RetryWait) != nil {
				return nil
			}
			continue
		}
		failures = 0
		if d.sleep(ctx, d.nextDelay()) != nil {
			return nil
		}
	}
}

func (d *Driver) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("agent: cycle PanicError: %v", r)
			logger.Stack("agent.cycle", debug.Stack())
			err = &outcome.PanicError{Value: r}
		}
	}()
	return d.RunCycle(ctx)
}

// RunCycle 执行一轮：并发取信号，再按顺序逐币种跑流水线。
// 所有币种都失败时返回错误，由外层计入重试预算。
func (d *Driver) RunCycle(ctx context.Context) error {
	symbols := d.Symbols()
	if len(symbols) == 0 {
		logger.Warnf("agent: no symbols configured")
		d.cycleDone()
		return nil
	}
	trace := uuid.NewString()[:8]
	bundles, sigErrs := d.fetchSignals(ctx, symbols)

	failed := 0
	var lastErr error
	for i, sym := range symbols {
		if ctx.Err() != nil {
			return nil
		}
		if err := sigErrs[i]; err != nil {
			failed++
			lastErr = err
			d.symbolFailed(trace, sym, "signal", err)
			continue
		}
		if err := d.runSymbol(ctx, bundles[i]); err != nil {
			failed++
			lastErr = err
			d.symbolFailed(trace, sym, "pipeline", err)
		}
	}
	d.cycleDone()
	if failed == len(symbols) {
		return fmt.Errorf("all %d symbols failed: %w", failed, lastErr)
	}
	return nil
}

func (d *Driver) fetchSignals(ctx context.Context, symbols []string) ([]types.SignalBundle, []error) {
	bundles := make([]types.SignalBundle, len(symbols))
	errs := make([]error, len(symbols))
	var eg errgroup.Group
	eg.SetLimit(d.cfg.SignalConcurrency)
	for i, sym := range symbols {
		i, sym := i, sym
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("agent: signal PanicError symbol=%s: %v", sym, r)
					logger.Stack("agent.signal", debug.Stack())
					errs[i] = &outcome.PanicError{Value: r}
				}
			}()
			bundles[i], errs[i] = d.signals.Produce(ctx, sym)
			return nil
		})
	}
	_ = eg.Wait()
	return bundles, errs
}

func (d *Driver) runSymbol(ctx context.Context, sig types.SignalBundle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("agent: pipeline PanicError symbol=%s: %v", sig.Symbol, r)
			logger.Stack("agent.pipeline", debug.Stack())
			err = &outcome.PanicError{Value: r}
		}
	}()
	_, err = d.runner.Run(ctx, sig)
	return err
}

func (d *Driver) symbolFailed(trace, sym, stage string, err error) {
	cls := outcome.Classify(err)
	if d.metrics != nil {
		d.metrics.IncException(cls.Type)
	}
	logger.Event("symbol failed", "trace", trace, "symbol", sym, "stage", stage, "type", cls.Type, "error", err.Error())
}

func (d *Driver) cycleDone() {
	d.cycles.Add(1)
	if d.metrics != nil {
		d.metrics.IncCycle()
	}
}

// nextDelay = interval + U[jitter_min, jitter_max]。
func (d *Driver) nextDelay() time.Duration {
	return d.cfg.Interval + d.jitter(d.cfg.JitterMin, d.cfg.JitterMax)
}

// heartbeatLoop 按墙钟间隔输出心跳，与循环休眠无关。
func (d *Driver) heartbeatLoop(ctx context.Context) {
	if d.stats == nil || d.cfg.Heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(d.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.heartbeat()
		}
	}
}

func (d *Driver) heartbeat() {
	if d.stats == nil {
		return
	}
	now := d.now()
	st := d.stats.Stats()
	logger.Event("heartbeat",
		"uptime", now.Sub(d.started).Truncate(time.Second).String(),
		"cycles", d.cycles.Load(),
		"balance", round2(st.Balance),
		"equity", round2(st.Equity),
		"pnl_pct", round2(st.PnLPct),
		"trades", st.Trades,
		"wins", st.Wins,
		"max_drawdown_pct", round2(st.MaxDrawdown*100),
		"avg_duration", st.AvgDuration.Truncate(time.Millisecond).String(),
		"error_rate", round2(st.ErrorRate),
		"open_positions", st.OpenPosCount,
	)
}

// stop 输出最后一次心跳；配置了 cancel_on_stop 时撤销全部挂单。
func (d *Driver) stop() {
	d.heartbeat()
	if !d.cfg.CancelOnStop || d.canceler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, sym := range d.Symbols() {
		if err := d.canceler.CancelOpenOrders(ctx, sym); err != nil {
			logger.Warnf("agent: cancel open orders %s failed: %v", sym, err)
			continue
		}
		logger.Infof("agent: canceled open orders for %s", sym)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo+1)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
