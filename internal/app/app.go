package app

import (
	"context"
	"fmt"
	"time"

	"spotpilot/internal/agent"
	"spotpilot/internal/config"
	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/logger"
	"spotpilot/internal/metrics"
	"spotpilot/internal/rules"
	"spotpilot/internal/store"
	livehttp "spotpilot/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：装配依赖后并行运行交易循环、规则刷新与 HTTP 服务。
type App struct {
	cfg      *config.Config
	cfgPath  string
	exchange exchange.Exchange
	rules    *rules.Provider
	metrics  *metrics.Sink
	journal  *store.Journal
	driver   *agent.Driver
	servers  []*livehttp.Server
	closers  []func() error
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return NewAppBuilder(cfg, opts...).Build(context.Background())
}

// Run 阻塞直到 ctx 取消或循环返回错误（例如 agent.ErrRetryBudgetExhausted）。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.driver == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.watchConfig()

	group, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.servers {
		srv := srv
		group.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("http server %s error: %w", srv.Addr(), err)
			}
			return nil
		})
	}
	if every := time.Duration(a.cfg.Rules.RefreshSec) * time.Second; every > 0 {
		group.Go(func() error {
			a.rules.Run(gctx, every, a.driver.Symbols)
			return nil
		})
	}
	group.Go(func() error {
		return a.driver.Run(gctx)
	})
	return group.Wait()
}

// Driver 暴露交易循环（测试用）。
func (a *App) Driver() *agent.Driver {
	if a == nil {
		return nil
	}
	return a.driver
}

// watchConfig 热加载日志级别与币种列表；其余字段需重启生效。
func (a *App) watchConfig() {
	if a.cfgPath == "" {
		return
	}
	err := config.Watch(a.cfgPath, a.applyReload)
	if err != nil {
		logger.Warnf("config watch disabled: %v", err)
	}
}

func (a *App) applyReload(next *config.Config) {
	if next == nil {
		return
	}
	if next.App.LogLevel != a.cfg.App.LogLevel {
		logger.SetLevel(next.App.LogLevel)
		logger.Infof("config reload: log_level %s -> %s", a.cfg.App.LogLevel, logger.Level())
		a.cfg.App.LogLevel = next.App.LogLevel
	}
	if !sameList(next.Cycle.Symbols, a.driver.Symbols()) {
		a.driver.SetSymbols(next.Cycle.Symbols)
		logger.Infof("config reload: symbols -> %v", a.driver.Symbols())
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("app: close failed: %v", err)
		}
	}
	a.closers = nil
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
