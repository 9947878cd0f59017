// Package account 维护账户视图：交易所余额、按平均成本记账的持仓、已实现盈亏、
// 按日桶记录的日初权益，以及心跳统计。
package account

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/registry"
	"spotpilot/internal/types"
)

const epsilon = 1e-9

type position struct {
	Qty     float64
	AvgCost float64
}

// Position 是持仓的只读视图。
type Position struct {
	Symbol  string  `json:"symbol"`
	Qty     float64 `json:"qty"`
	AvgCost float64 `json:"avg_cost"`
	Mark    float64 `json:"mark,omitempty"`
}

// Stats 是心跳输出的汇总。
type Stats struct {
	Uptime       time.Duration `json:"uptime"`
	Balance      float64       `json:"balance"`
	Equity       float64       `json:"equity"`
	PnLPct       float64       `json:"pnl_pct"`
	RealizedPnL  float64       `json:"realized_pnl"`
	Trades       int           `json:"trades"`
	Wins         int           `json:"wins"`
	MaxDrawdown  float64       `json:"max_drawdown"`
	AvgDuration  time.Duration `json:"avg_duration"`
	ErrorRate    float64       `json:"error_rate"`
	Attempts     int           `json:"attempts"`
	OpenPosCount int           `json:"open_positions"`
}

// Tracker 是并发安全的账户状态提供者。
type Tracker struct {
	source     exchange.Account
	quoteAsset string
	tz         time.Duration
	now        func() time.Time

	mu             sync.Mutex
	started        time.Time
	positions      map[string]*position
	realized       float64
	realizedDay    float64
	trades         int
	wins           int
	initialEquity  float64
	lastEquity     float64
	lastQuote      float64
	peakEquity     float64
	maxDrawdown    float64
	dayBucket      int64
	dayStartEquity float64
	attempts       int
	errors         int
	durationTotal  time.Duration
	durationCount  int
}

func NewTracker(source exchange.Account, quoteAsset string, tz time.Duration) *Tracker {
	return &Tracker{
		source:     source,
		quoteAsset: strings.ToUpper(quoteAsset),
		tz:         tz,
		now:        time.Now,
		started:    time.Now(),
		positions:  make(map[string]*position),
		dayBucket:  math.MinInt64,
	}
}

// SetClock 替换时间源，测试用。
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.started = now()
}

// State 拉取余额并按 marks 估值。日桶变化时以当前权益作为新的日初权益。
func (t *Tracker) State(ctx context.Context, sym string, marks map[string]float64) (types.AccountState, error) {
	sym = symbol.Normalize(sym)
	quoteAsset := t.quoteAsset
	parsed := symbol.Parse(sym)
	if parsed.Quote != "" {
		quoteAsset = parsed.Quote
	}
	quoteFree, err := t.source.FreeBalance(ctx, quoteAsset)
	if err != nil {
		return types.AccountState{}, fmt.Errorf("balance %s: %w", quoteAsset, err)
	}
	var baseFree float64
	if parsed.Base != "" {
		baseFree, err = t.source.FreeBalance(ctx, parsed.Base)
		if err != nil {
			return types.AccountState{}, fmt.Errorf("balance %s: %w", parsed.Base, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	equity := quoteFree
	seen := false
	for name, pos := range t.positions {
		qty := pos.Qty
		if name == sym {
			qty = math.Max(qty, baseFree)
			seen = true
		}
		equity += qty * markOr(marks, name, pos.AvgCost)
	}
	if !seen && baseFree > 0 {
		equity += baseFree * marks[sym]
	}
	t.observeEquityLocked(equity, quoteFree)
	return types.AccountState{
		QuoteAsset:     quoteAsset,
		QuoteFree:      quoteFree,
		BaseFree:       baseFree,
		Equity:         equity,
		DayStartEquity: t.dayStartEquity,
		RealizedPnL:    t.realizedDay,
	}, nil
}

func (t *Tracker) observeEquityLocked(equity, quote float64) {
	now := t.now()
	bucket := registry.DayBucket(now, t.tz)
	if bucket != t.dayBucket {
		t.dayBucket = bucket
		t.dayStartEquity = equity
		t.realizedDay = 0
	}
	if t.initialEquity == 0 {
		t.initialEquity = equity
	}
	t.lastEquity = equity
	t.lastQuote = quote
	if equity > t.peakEquity {
		t.peakEquity = equity
	}
	if t.peakEquity > 0 {
		if dd := (t.peakEquity - equity) / t.peakEquity; dd > t.maxDrawdown {
			t.maxDrawdown = dd
		}
	}
}

// RecordFill 以平均成本记账。BUY 的手续费计入成本；SELL 返回本次已实现盈亏。
func (t *Tracker) RecordFill(sym string, side types.Side, qty, quoteValue, feeQuote float64) float64 {
	if qty <= 0 {
		return 0
	}
	sym = symbol.Normalize(sym)
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := t.positions[sym]
	switch side {
	case types.SideBuy:
		if pos == nil {
			pos = &position{}
			t.positions[sym] = pos
		}
		cost := pos.AvgCost*pos.Qty + quoteValue + feeQuote
		pos.Qty += qty
		pos.AvgCost = cost / pos.Qty
		return 0
	case types.SideSell:
		sold, basis := 0.0, 0.0
		if pos != nil {
			sold = math.Min(qty, pos.Qty)
			basis = sold * pos.AvgCost
		}
		// 未记账的持仓（启动前已持有）按成交价计成本，盈亏只计手续费。
		basis += (qty - sold) * (quoteValue / qty)
		pnl := quoteValue - feeQuote - basis
		t.realized += pnl
		t.realizedDay += pnl
		t.trades++
		if pnl > 0 {
			t.wins++
		}
		if pos != nil {
			pos.Qty -= sold
			if pos.Qty <= epsilon {
				delete(t.positions, sym)
			}
		}
		return pnl
	}
	return 0
}

// RecordAttempt 记录一次下单尝试的耗时与成败，用于平均耗时与错误率。
func (t *Tracker) RecordAttempt(d time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if failed {
		t.errors++
	}
	if d > 0 {
		t.durationTotal += d
		t.durationCount++
	}
}

// Held 返回记账持仓数量。
func (t *Tracker) Held(sym string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos := t.positions[symbol.Normalize(sym)]; pos != nil {
		return pos.Qty
	}
	return 0
}

func (t *Tracker) Positions(marks map[string]float64) []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, 0, len(t.positions))
	for sym, pos := range t.positions {
		out = append(out, Position{Symbol: sym, Qty: pos.Qty, AvgCost: pos.AvgCost, Mark: marks[sym]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		Uptime:       t.now().Sub(t.started),
		Balance:      t.lastQuote,
		Equity:       t.lastEquity,
		RealizedPnL:  t.realized,
		Trades:       t.trades,
		Wins:         t.wins,
		MaxDrawdown:  t.maxDrawdown,
		Attempts:     t.attempts,
		OpenPosCount: len(t.positions),
	}
	if t.initialEquity > 0 {
		s.PnLPct = (t.lastEquity - t.initialEquity) / t.initialEquity * 100
	}
	if t.durationCount > 0 {
		s.AvgDuration = t.durationTotal / time.Duration(t.durationCount)
	}
	if t.attempts > 0 {
		s.ErrorRate = float64(t.errors) / float64(t.attempts)
	}
	return s
}

func markOr(marks map[string]float64, sym string, fallback float64) float64 {
	if v, ok := marks[sym]; ok && v > 0 {
		return v
	}
	return fallback
}
