// Package paper 是内存撮合交易所：账户与订单完全本地模拟，行情可来自真实
// 数据源（dry_run 时挂接交易所公共接口），也可由测试直接注入。
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/outcome"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"

	"github.com/google/uuid"
)

const epsilon = 1e-12

// Config 描述模拟账户。
type Config struct {
	QuoteAsset string
	FeeRate    float64
	Balances   map[string]float64
}

type order struct {
	ack   exchange.OrderAck
	price float64
	qty   float64
	tif   types.TimeInForce
}

// Exchange implements exchange.Exchange in memory.
type Exchange struct {
	feed exchange.MarketData

	mu       sync.Mutex
	cfg      Config
	prices   map[string]float64
	books    map[string]types.OrderBook
	klines   map[string][]types.Candle
	rules    map[string]types.SymbolRules
	balances map[string]float64
	orders   map[string]*order
	failures map[string]error
	// pinned 记录由测试直接注入的行情，注入后不再向 feed 拉取。
	pinned map[string]bool
}

// New 构造模拟交易所；feed 为空时行情只来自 SetPrice/SetBook/SetKlines。
func New(cfg Config, feed exchange.MarketData) *Exchange {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	balances := make(map[string]float64, len(cfg.Balances))
	for asset, v := range cfg.Balances {
		balances[strings.ToUpper(asset)] = v
	}
	return &Exchange{
		feed:     feed,
		cfg:      cfg,
		prices:   make(map[string]float64),
		books:    make(map[string]types.OrderBook),
		klines:   make(map[string][]types.Candle),
		rules:    make(map[string]types.SymbolRules),
		balances: balances,
		orders:   make(map[string]*order),
		failures: make(map[string]error),
		pinned:   make(map[string]bool),
	}
}

func (e *Exchange) Name() string { return "paper" }

// SetPrice 设置最新价。
func (e *Exchange) SetPrice(sym string, price float64) {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	e.prices[sym] = price
	e.pinned["price:"+sym] = true
	e.mu.Unlock()
}

// SetBook 设置订单簿快照。
func (e *Exchange) SetBook(sym string, book types.OrderBook) {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	e.books[sym] = book
	e.pinned["book:"+sym] = true
	e.mu.Unlock()
}

func (e *Exchange) SetKlines(sym string, candles []types.Candle) {
	e.mu.Lock()
	e.klines[symbol.Normalize(sym)] = append([]types.Candle(nil), candles...)
	e.mu.Unlock()
}

func (e *Exchange) SetRules(r types.SymbolRules) {
	e.mu.Lock()
	e.rules[symbol.Normalize(r.Symbol)] = r
	e.mu.Unlock()
}

func (e *Exchange) SetBalance(asset string, v float64) {
	e.mu.Lock()
	e.balances[strings.ToUpper(asset)] = v
	e.mu.Unlock()
}

// FailNext 让下一次 op 调用返回 err（op: place, query, cancel, price, book, balance）。
func (e *Exchange) FailNext(op string, err error) {
	e.mu.Lock()
	e.failures[op] = err
	e.mu.Unlock()
}

func (e *Exchange) takeFailure(op string) error {
	err, ok := e.failures[op]
	if !ok {
		return nil
	}
	delete(e.failures, op)
	return err
}

func (e *Exchange) LastPrice(ctx context.Context, sym string) (float64, error) {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	if err := e.takeFailure("price"); err != nil {
		e.mu.Unlock()
		return 0, err
	}
	p, ok := e.prices[sym]
	pinned := e.pinned["price:"+sym]
	e.mu.Unlock()
	if e.feed != nil && !pinned {
		fetched, err := e.feed.LastPrice(ctx, sym)
		if err != nil {
			return 0, err
		}
		e.mu.Lock()
		e.prices[sym] = fetched
		e.mu.Unlock()
		return fetched, nil
	}
	if ok && p > 0 {
		return p, nil
	}
	return 0, fmt.Errorf("paper: no price for %s", sym)
}

func (e *Exchange) OrderBook(ctx context.Context, sym string, depth int) (types.OrderBook, error) {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	if err := e.takeFailure("book"); err != nil {
		e.mu.Unlock()
		return types.OrderBook{}, err
	}
	book := e.books[sym]
	pinned := e.pinned["book:"+sym]
	e.mu.Unlock()
	if e.feed != nil && !pinned {
		fetched, err := e.feed.OrderBook(ctx, sym, depth)
		if err != nil {
			return types.OrderBook{}, err
		}
		e.mu.Lock()
		e.books[sym] = fetched
		e.mu.Unlock()
		book = fetched
	}
	return truncate(book, depth), nil
}

func (e *Exchange) Klines(ctx context.Context, sym, interval string, limit int) ([]types.Candle, error) {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	candles, ok := e.klines[sym]
	e.mu.Unlock()
	if !ok {
		if e.feed != nil {
			return e.feed.Klines(ctx, sym, interval, limit)
		}
		return nil, fmt.Errorf("paper: no klines for %s", sym)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return append([]types.Candle(nil), candles...), nil
}

// SymbolInfo 返回注入的规则；未注入时返回空规则，由调用方用默认值补齐。
func (e *Exchange) SymbolInfo(ctx context.Context, sym string) (types.SymbolRules, error) {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[sym]; ok {
		return r, nil
	}
	parsed := symbol.Parse(sym)
	return types.SymbolRules{Symbol: sym, QuoteAsset: parsed.Quote, BaseAsset: parsed.Base}, nil
}

func (e *Exchange) FreeBalance(ctx context.Context, asset string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("balance"); err != nil {
		return 0, err
	}
	return e.balances[strings.ToUpper(asset)], nil
}

// PlaceMarketOrder 沿订单簿吃单；无订单簿时按最新价全部成交。
func (e *Exchange) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return exchange.OrderAck{}, &outcome.NetworkError{Op: "place", Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	sym := symbol.Normalize(req.Symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("place"); err != nil {
		return exchange.OrderAck{}, err
	}
	if req.Qty <= 0 {
		return exchange.OrderAck{}, &outcome.ExchangeError{Code: -1013, Message: "Invalid quantity."}
	}
	levels := e.takerLevelsLocked(sym, req.Side, 0)
	fills := walk(levels, req.Qty)
	ack := e.newAckLocked(sym, req)
	if len(fills) == 0 {
		ack.Status = exchange.OrderExpired
		return ack, &outcome.ExchangeError{Code: -2010, Message: "No liquidity for market order."}
	}
	if err := e.settleLocked(sym, req.Side, fills, &ack); err != nil {
		return exchange.OrderAck{}, err
	}
	if ack.ExecutedQty+epsilon >= req.Qty {
		ack.Status = exchange.OrderFilled
	} else {
		ack.Status = exchange.OrderExpired
	}
	return ack, nil
}

// PlaceLimitOrder 可立即成交部分按限价吃单，余量挂单（IOC 则撤销）。
func (e *Exchange) PlaceLimitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return exchange.OrderAck{}, &outcome.NetworkError{Op: "place", Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	sym := symbol.Normalize(req.Symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("place"); err != nil {
		return exchange.OrderAck{}, err
	}
	if req.Qty <= 0 || req.Price <= 0 {
		return exchange.OrderAck{}, &outcome.ExchangeError{Code: -1013, Message: "Invalid quantity or price."}
	}
	levels := e.takerLevelsLocked(sym, req.Side, req.Price)
	if req.PostOnly && len(levels) > 0 {
		return exchange.OrderAck{}, &outcome.ExchangeError{Code: -2010, Message: "Order would immediately match and take."}
	}
	ack := e.newAckLocked(sym, req)
	fills := walk(levels, req.Qty)
	if len(fills) > 0 {
		if err := e.settleLocked(sym, req.Side, fills, &ack); err != nil {
			return exchange.OrderAck{}, err
		}
	}
	switch {
	case ack.ExecutedQty+epsilon >= req.Qty:
		ack.Status = exchange.OrderFilled
	case req.TimeInForce == types.TimeInForceIOC:
		ack.Status = exchange.OrderExpired
	case ack.ExecutedQty > 0:
		ack.Status = exchange.OrderPartiallyFilled
	default:
		ack.Status = exchange.OrderNew
	}
	if !ack.Status.Final() {
		e.orders[ack.OrderID] = &order{ack: ack, price: req.Price, qty: req.Qty, tif: req.TimeInForce}
	}
	return ack, nil
}

// QueryOrder 返回订单状态；挂单会按当前行情尝试继续成交。
func (e *Exchange) QueryOrder(ctx context.Context, sym, orderID string) (exchange.OrderAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("query"); err != nil {
		return exchange.OrderAck{}, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return exchange.OrderAck{}, &outcome.ExchangeError{Code: -2013, Message: "Order does not exist."}
	}
	if !o.ack.Status.Final() {
		remaining := o.qty - o.ack.ExecutedQty
		levels := e.takerLevelsLocked(o.ack.Symbol, o.ack.Side, o.price)
		if fills := walk(levels, remaining); len(fills) > 0 {
			if err := e.settleLocked(o.ack.Symbol, o.ack.Side, fills, &o.ack); err == nil {
				if o.ack.ExecutedQty+epsilon >= o.qty {
					o.ack.Status = exchange.OrderFilled
				} else {
					o.ack.Status = exchange.OrderPartiallyFilled
				}
			}
		}
	}
	return cloneAck(o.ack), nil
}

func (e *Exchange) CancelOrder(ctx context.Context, sym, orderID string) (exchange.OrderAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("cancel"); err != nil {
		return exchange.OrderAck{}, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return exchange.OrderAck{}, &outcome.ExchangeError{Code: -2011, Message: "Unknown order sent."}
	}
	if !o.ack.Status.Final() {
		o.ack.Status = exchange.OrderCanceled
	}
	return cloneAck(o.ack), nil
}

func (e *Exchange) CancelOpenOrders(ctx context.Context, sym string) error {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure("cancel"); err != nil {
		return err
	}
	for _, o := range e.orders {
		if o.ack.Symbol == sym && !o.ack.Status.Final() {
			o.ack.Status = exchange.OrderCanceled
		}
	}
	return nil
}

// OpenOrders 返回未终结的挂单数量（测试与状态页使用）。
func (e *Exchange) OpenOrders(sym string) int {
	sym = symbol.Normalize(sym)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, o := range e.orders {
		if o.ack.Symbol == sym && !o.ack.Status.Final() {
			n++
		}
	}
	return n
}

func (e *Exchange) newAckLocked(sym string, req exchange.OrderRequest) exchange.OrderAck {
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return exchange.OrderAck{
		OrderID:       uuid.NewString(),
		ClientOrderID: clientID,
		Symbol:        sym,
		Side:          req.Side,
		Status:        exchange.OrderNew,
		Raw:           map[string]any{"venue": "paper"},
	}
}

// takerLevelsLocked 返回 side 方向可吃的档位；limit>0 时只保留不劣于限价的档位。
func (e *Exchange) takerLevelsLocked(sym string, side types.Side, limit float64) []types.Level {
	book, ok := e.books[sym]
	var levels []types.Level
	// 无订单簿时按最新价视为无限深度。
	if ok {
		levels = book.Side(side)
	} else if p := e.prices[sym]; p > 0 {
		levels = []types.Level{{Price: p, Qty: math.MaxFloat64}}
	}
	if limit <= 0 {
		return levels
	}
	out := make([]types.Level, 0, len(levels))
	for _, lvl := range levels {
		if side == types.SideBuy && lvl.Price > limit+epsilon {
			break
		}
		if side == types.SideSell && lvl.Price < limit-epsilon {
			break
		}
		out = append(out, lvl)
	}
	return out
}

func (e *Exchange) settleLocked(sym string, side types.Side, fills []exchange.Fill, ack *exchange.OrderAck) error {
	parsed := symbol.Parse(sym)
	base, quote := parsed.Base, parsed.Quote
	if quote == "" {
		quote = e.cfg.QuoteAsset
	}
	qty, notional := 0.0, 0.0
	for i := range fills {
		qty += fills[i].Qty
		notional += fills[i].Qty * fills[i].Price
		fills[i].Commission = fills[i].Qty * fills[i].Price * e.cfg.FeeRate
		fills[i].CommissionAsset = quote
	}
	fee := notional * e.cfg.FeeRate
	switch side {
	case types.SideBuy:
		if notional+fee > e.balances[quote]+epsilon {
			return &outcome.ExchangeError{Code: -2010, Message: "Account has insufficient balance for requested action."}
		}
		e.balances[quote] -= notional + fee
		e.balances[base] += qty
	case types.SideSell:
		if qty > e.balances[base]+epsilon {
			return &outcome.ExchangeError{Code: -2010, Message: "Account has insufficient balance for requested action."}
		}
		e.balances[base] -= qty
		e.balances[quote] += notional - fee
	}
	ack.ExecutedQty += qty
	ack.CumQuote += notional
	ack.Fills = append(ack.Fills, fills...)
	e.consumeLocked(sym, side, fills)
	return nil
}

// consumeLocked 从订单簿中扣除已成交数量。
func (e *Exchange) consumeLocked(sym string, side types.Side, fills []exchange.Fill) {
	book, ok := e.books[sym]
	if !ok {
		return
	}
	levels := book.Side(side)
	out := make([]types.Level, 0, len(levels))
	for _, lvl := range levels {
		for _, f := range fills {
			if f.Price == lvl.Price {
				lvl.Qty -= f.Qty
			}
		}
		if lvl.Qty > epsilon {
			out = append(out, lvl)
		}
	}
	if side == types.SideBuy {
		book.Asks = out
	} else {
		book.Bids = out
	}
	e.books[sym] = book
}

func walk(levels []types.Level, qty float64) []exchange.Fill {
	var fills []exchange.Fill
	remaining := qty
	for _, lvl := range levels {
		if remaining <= epsilon {
			break
		}
		take := math.Min(remaining, lvl.Qty)
		if take <= 0 {
			continue
		}
		fills = append(fills, exchange.Fill{Price: lvl.Price, Qty: take})
		remaining -= take
	}
	return fills
}

func truncate(book types.OrderBook, depth int) types.OrderBook {
	out := types.OrderBook{
		Bids: append([]types.Level(nil), book.Bids...),
		Asks: append([]types.Level(nil), book.Asks...),
	}
	sort.SliceStable(out.Bids, func(i, j int) bool { return out.Bids[i].Price > out.Bids[j].Price })
	sort.SliceStable(out.Asks, func(i, j int) bool { return out.Asks[i].Price < out.Asks[j].Price })
	if depth > 0 {
		if len(out.Bids) > depth {
			out.Bids = out.Bids[:depth]
		}
		if len(out.Asks) > depth {
			out.Asks = out.Asks[:depth]
		}
	}
	return out
}

func cloneAck(a exchange.OrderAck) exchange.OrderAck {
	out := a
	out.Fills = append([]exchange.Fill(nil), a.Fills...)
	if a.Raw != nil {
		out.Raw = make(map[string]any, len(a.Raw))
		for k, v := range a.Raw {
			out.Raw[k] = v
		}
	}
	return out
}

var _ exchange.Exchange = (*Exchange)(nil)
