// Package rules 提供币种下单规则（tick/step/最小名义额），支持默认值、
// YAML 覆盖与交易所 exchangeInfo 拉取，刷新时整体原子替换缓存。
package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spotpilot/internal/logger"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"
)

// Fetcher 是交易所侧的规则来源。
type Fetcher interface {
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolRules, error)
}

// Defaults 为缺失字段的兜底值。
type Defaults struct {
	TickSize    float64
	StepSize    float64
	MinNotional float64
	QuoteAsset  string
}

type Provider struct {
	defaults  Defaults
	overrides map[string]types.SymbolRules
	fetcher   Fetcher

	cache   atomic.Pointer[map[string]types.SymbolRules]
	fillMu  sync.Mutex
	fetched atomic.Int64
}

// NewProvider 构造规则提供者；fetcher 可为空（仅使用默认值与覆盖）。
func NewProvider(defaults Defaults, overrides map[string]types.SymbolRules, fetcher Fetcher) *Provider {
	p := &Provider{defaults: defaults, overrides: overrides, fetcher: fetcher}
	empty := make(map[string]types.SymbolRules)
	p.cache.Store(&empty)
	return p
}

// Get 返回缓存规则；未命中时拉取一次并写入缓存。拉取失败退回默认值。
func (p *Provider) Get(ctx context.Context, sym string) (types.SymbolRules, error) {
	sym = symbol.Normalize(sym)
	if sym == "" {
		return types.SymbolRules{}, fmt.Errorf("rules: symbol is required")
	}
	if r, ok := (*p.cache.Load())[sym]; ok {
		return r, nil
	}
	p.fillMu.Lock()
	defer p.fillMu.Unlock()
	current := *p.cache.Load()
	if r, ok := current[sym]; ok {
		return r, nil
	}
	r := p.resolve(ctx, sym)
	next := make(map[string]types.SymbolRules, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[sym] = r
	p.cache.Store(&next)
	return r, nil
}

// Refresh 为给定币种重建整张缓存并原子替换。
func (p *Provider) Refresh(ctx context.Context, symbols []string) {
	next := make(map[string]types.SymbolRules, len(symbols))
	for _, raw := range symbols {
		sym := symbol.Normalize(raw)
		if sym == "" {
			continue
		}
		next[sym] = p.resolve(ctx, sym)
	}
	p.fillMu.Lock()
	p.cache.Store(&next)
	p.fillMu.Unlock()
}

// Run 周期性刷新，直到 ctx 结束。
func (p *Provider) Run(ctx context.Context, every time.Duration, symbols func() []string) {
	if every <= 0 || symbols == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx, symbols())
			logger.Debugf("rules cache refreshed (%d symbols)", len(*p.cache.Load()))
		}
	}
}

// FetchCount 返回交易所拉取次数。
func (p *Provider) FetchCount() int64 {
	return p.fetched.Load()
}

func (p *Provider) resolve(ctx context.Context, sym string) types.SymbolRules {
	var base types.SymbolRules
	if p.fetcher != nil {
		p.fetched.Add(1)
		r, err := p.fetcher.SymbolInfo(ctx, sym)
		if err != nil {
			logger.Warnf("rules: exchange info for %s failed, using defaults: %v", sym, err)
		} else {
			base = r
		}
	}
	if ov, ok := p.overrides[sym]; ok {
		base = merge(base, ov)
	}
	return p.fillDefaults(sym, base)
}

func merge(base, ov types.SymbolRules) types.SymbolRules {
	if ov.TickSize > 0 {
		base.TickSize = ov.TickSize
	}
	if ov.StepSize > 0 {
		base.StepSize = ov.StepSize
	}
	if ov.MinNotional > 0 {
		base.MinNotional = ov.MinNotional
	}
	if ov.QuoteAsset != "" {
		base.QuoteAsset = ov.QuoteAsset
	}
	if ov.BaseAsset != "" {
		base.BaseAsset = ov.BaseAsset
	}
	return base
}

func (p *Provider) fillDefaults(sym string, r types.SymbolRules) types.SymbolRules {
	r.Symbol = sym
	if r.TickSize <= 0 {
		r.TickSize = p.defaults.TickSize
	}
	if r.StepSize <= 0 {
		r.StepSize = p.defaults.StepSize
	}
	if r.MinNotional <= 0 {
		r.MinNotional = p.defaults.MinNotional
	}
	parsed := symbol.Parse(sym)
	if r.QuoteAsset == "" {
		r.QuoteAsset = parsed.Quote
	}
	if r.QuoteAsset == "" {
		r.QuoteAsset = p.defaults.QuoteAsset
	}
	if r.BaseAsset == "" {
		r.BaseAsset = parsed.Base
	}
	return r
}
