// Package market 汇总交易循环所需的行情快照：最新价与订单簿并发获取。
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/logger"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"

	"golang.org/x/sync/errgroup"
)

// Provider 包装交易所行情接口，并缓存每个币种最近一次快照。
type Provider struct {
	source exchange.MarketData
	depth  int
	now    func() time.Time

	mu   sync.RWMutex
	last map[string]types.MarketState
}

func NewProvider(source exchange.MarketData, depth int) *Provider {
	if depth <= 0 {
		depth = 20
	}
	return &Provider{
		source: source,
		depth:  depth,
		now:    time.Now,
		last:   make(map[string]types.MarketState),
	}
}

// Snapshot 并发获取最新价与订单簿。最新价失败返回错误；订单簿失败时 Book 为空，
// 校验链会跳过点差/冲击检查。
func (p *Provider) Snapshot(ctx context.Context, sym string) (types.MarketState, error) {
	sym = symbol.Normalize(sym)
	if sym == "" {
		return types.MarketState{}, fmt.Errorf("symbol is required")
	}
	var (
		price   float64
		book    types.OrderBook
		bookErr error
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		v, err := p.source.LastPrice(gctx, sym)
		if err != nil {
			return fmt.Errorf("last price %s: %w", sym, err)
		}
		price = v
		return nil
	})
	group.Go(func() error {
		book, bookErr = p.source.OrderBook(gctx, sym, p.depth)
		return nil
	})
	if err := group.Wait(); err != nil {
		return types.MarketState{}, err
	}
	state := types.MarketState{Symbol: sym, LastPrice: price, FetchedAt: p.now()}
	if bookErr != nil {
		logger.Warnf("market: order book %s unavailable: %v", sym, bookErr)
	} else if len(book.Bids) > 0 || len(book.Asks) > 0 {
		b := book
		state.Book = &b
	}
	p.mu.Lock()
	p.last[sym] = state
	p.mu.Unlock()
	return state, nil
}

// Book 返回新鲜的订单簿快照，执行器预检使用。
func (p *Provider) Book(ctx context.Context, sym string) (*types.OrderBook, error) {
	book, err := p.source.OrderBook(ctx, symbol.Normalize(sym), p.depth)
	if err != nil {
		return nil, err
	}
	if len(book.Bids) == 0 && len(book.Asks) == 0 {
		return nil, nil
	}
	return &book, nil
}

func (p *Provider) LastPrice(ctx context.Context, sym string) (float64, error) {
	return p.source.LastPrice(ctx, symbol.Normalize(sym))
}

func (p *Provider) Klines(ctx context.Context, sym, interval string, limit int) ([]types.Candle, error) {
	return p.source.Klines(ctx, symbol.Normalize(sym), strings.ToLower(interval), limit)
}

// Last 返回缓存的最近快照。
func (p *Provider) Last(sym string) (types.MarketState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.last[symbol.Normalize(sym)]
	return s, ok
}

// Marks 返回全部币种最近的最新价，用于权益估值。
func (p *Provider) Marks() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.last))
	for sym, s := range p.last {
		if s.LastPrice > 0 {
			out[sym] = s.LastPrice
		}
	}
	return out
}
