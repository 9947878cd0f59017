// Package executor 负责单笔计划的预检、提交、成交解析与注册表更新。
// 所有失败都在这里被分类为 OrderResult，调用方不会收到 error。
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/logger"
	"spotpilot/internal/metrics"
	"spotpilot/internal/outcome"
	"spotpilot/internal/pkg/quant"
	"spotpilot/internal/risk"
	"spotpilot/internal/types"

	"github.com/google/uuid"
)

// Market 是预检所需的新鲜行情。
type Market interface {
	Book(ctx context.Context, symbol string) (*types.OrderBook, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Ledger 是成交后需要更新的注册表能力。
type Ledger interface {
	MarkTrade(symbol string, now time.Time)
	AddExposure(symbol string, delta float64) float64
}

// FillObserver 接收成交（账户记账）。
type FillObserver interface {
	RecordFill(symbol string, side types.Side, qty, quoteValue, feeQuote float64) float64
}

// Stealth 是提交前的随机延迟，总时长受 Budget 约束（从预检开始计）。
type Stealth struct {
	Enabled  bool
	MinDelay time.Duration
	MaxDelay time.Duration
	Budget   time.Duration
}

type Config struct {
	OrderTimeout time.Duration
	FillTimeout  time.Duration
	FillPoll     time.Duration
	AllowPartial bool
	DryRun       bool
	QuoteAsset   string
	FeeRate      float64
	Stealth      Stealth
}

type Executor struct {
	cfg      Config
	trading  exchange.Trading
	market   Market
	checker  *risk.Validator
	ledger   Ledger
	recorder metrics.Recorder
	fills    FillObserver

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func New(cfg Config, trading exchange.Trading, market Market, checker *risk.Validator, ledger Ledger, recorder metrics.Recorder) *Executor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 5 * time.Second
	}
	if cfg.FillPoll <= 0 {
		cfg.FillPoll = 500 * time.Millisecond
	}
	return &Executor{
		cfg:      cfg,
		trading:  trading,
		market:   market,
		checker:  checker,
		ledger:   ledger,
		recorder: recorder,
		now:      time.Now,
		sleep:    sleepCtx,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFillObserver 挂接账户记账。
func (e *Executor) SetFillObserver(f FillObserver) { e.fills = f }

// SetClock 替换时间源与等待函数，测试用。
func (e *Executor) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	if now != nil {
		e.now = now
	}
	if sleep != nil {
		e.sleep = sleep
	}
}

// Execute 运行 precheck → submitting → 终态。调用方负责持有该币种的串行锁。
func (e *Executor) Execute(ctx context.Context, p types.OrderPlan, rules types.SymbolRules) types.OrderResult {
	precheckStart := e.now()
	if !p.Side.Valid() {
		return e.reject(p, types.ReasonInvalidSide, "invalid side")
	}
	if p.QtyBase <= 0 {
		return e.reject(p, types.ReasonQtyNonPositive, "qty_base must be positive at submit")
	}

	last, lastErr := e.market.LastPrice(ctx, p.Symbol)
	if lastErr != nil {
		logger.Warnf("executor: precheck last price %s: %v", p.Symbol, lastErr)
		last = 0
	}
	ref := p.EntryPrice
	if ref <= 0 {
		ref = last
	}
	if ref <= 0 {
		return e.reject(p, types.ReasonNoPriceSource, "no reference price at precheck")
	}
	book, err := e.market.Book(ctx, p.Symbol)
	if err != nil {
		logger.Warnf("executor: precheck book %s: %v", p.Symbol, err)
		book = nil
	}
	quality, reason, detail := e.checker.Assess(risk.MarketCheck{
		Side:           p.Side,
		Qty:            p.QtyBase,
		Entry:          p.EntryPrice,
		Last:           last,
		Reference:      ref,
		MaxSlippagePct: p.MaxSlippagePct,
		Book:           book,
	})
	if reason != "" {
		return e.reject(p, reason, detail)
	}

	if err := e.stealthDelay(ctx, precheckStart); err != nil {
		return e.fail(p, err, 0)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(p, &outcome.NetworkError{Op: "submit", Err: err}, 0)
	}

	req := exchange.OrderRequest{
		Symbol:        p.Symbol,
		Side:          p.Side,
		Qty:           p.QtyBase,
		TimeInForce:   p.TimeInForce,
		PostOnly:      p.PostOnly,
		ClientOrderID: "sp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Rules:         rules,
	}
	// 已提交的订单不随外部停止信号取消，只受超时约束。
	inflight := context.WithoutCancel(ctx)
	submitStart := e.now()
	subCtx, cancel := context.WithTimeout(inflight, e.cfg.OrderTimeout)
	var ack exchange.OrderAck
	if p.OrderType == types.OrderTypeLimit {
		req.Price = p.EntryPrice
		if req.Price <= 0 {
			req.Price = quant.RoundToTick(last, rules.TickSize)
		}
		if req.TimeInForce == "" {
			req.TimeInForce = types.TimeInForceGTC
		}
		ack, err = e.trading.PlaceLimitOrder(subCtx, req)
	} else {
		ack, err = e.trading.PlaceMarketOrder(subCtx, req)
	}
	cancel()
	if err != nil {
		return e.fail(p, err, e.now().Sub(submitStart))
	}

	canceledByUs := false
	if p.OrderType == types.OrderTypeLimit && !ack.Status.Final() {
		ack, canceledByUs = e.awaitFill(inflight, p, ack)
	}
	elapsed := e.now().Sub(submitStart)

	fill := e.parseFills(inflight, p, rules, ack, last)
	res := types.OrderResult{
		Symbol:      p.Symbol,
		Side:        p.Side,
		OrderID:     ack.OrderID,
		FilledQty:   fill.Qty,
		FilledQuote: fill.Quote,
		AvgPrice:    fill.AvgPrice,
		FeeQuote:    fill.FeeQuote,
		Raw:         fill.Raw,
	}
	res.Raw["exchange_status"] = string(ack.Status)
	res.Raw["client_order_id"] = req.ClientOrderID
	res.Raw["expected_slippage"] = quality.ExpectedSlippage
	if quality.VWAP > 0 {
		res.Raw["precheck_vwap"] = quality.VWAP
	}

	if fill.Qty <= 0 {
		res.Status = types.StatusExchangeReject
		res.State = types.ExecRejected
		res.Error = fmt.Sprintf("order %s ended %s without fills", ack.OrderID, ack.Status)
		if canceledByUs || ack.Status == exchange.OrderCanceled {
			res.State = types.ExecCanceled
			res.Error = fmt.Sprintf("limit order %s not filled within %s; canceled", ack.OrderID, e.cfg.FillTimeout)
		}
		e.recorder.ObserveOrder(p.Symbol, p.Side, res.Status)
		e.recorder.IncException(outcome.TypeExchange)
		e.recorder.ObserveExecution(elapsed)
		return res
	}

	res.Success = true
	res.Status = types.StatusOK
	if e.cfg.DryRun {
		res.Status = types.StatusMockOK
	}
	switch {
	case canceledByUs:
		res.State = types.ExecCanceled
	case ack.Status.Final():
		res.State = types.ExecFilled
	default:
		res.State = types.ExecPartial
	}
	if fill.Qty < p.QtyBase {
		res.Reason = "partial_fill"
	}

	e.settle(p, res)
	e.recorder.ObserveOrder(p.Symbol, p.Side, res.Status)
	e.recorder.ObserveExecution(elapsed)
	return res
}

// settle 更新敞口并标记冷却；卖出的已实现盈亏写入 res.Raw。
func (e *Executor) settle(p types.OrderPlan, res types.OrderResult) {
	delta := res.FilledQuote
	if p.Side == types.SideSell {
		delta = -delta
	}
	exposure := e.ledger.AddExposure(p.Symbol, delta)
	e.ledger.MarkTrade(p.Symbol, e.now())
	e.recorder.SetExposure(p.Symbol, exposure)
	if e.fills != nil {
		pnl := e.fills.RecordFill(p.Symbol, p.Side, res.FilledQty, res.FilledQuote, res.FeeQuote)
		if p.Side == types.SideSell && res.Raw != nil {
			res.Raw["realized_pnl"] = pnl
		}
	}
}

// awaitFill 轮询限价单直到终态或超时；超时且不允许部分成交时撤单。
func (e *Executor) awaitFill(ctx context.Context, p types.OrderPlan, ack exchange.OrderAck) (exchange.OrderAck, bool) {
	deadline := e.now().Add(e.cfg.FillTimeout)
	for !ack.Status.Final() && e.now().Before(deadline) {
		if err := e.sleep(ctx, e.cfg.FillPoll); err != nil {
			break
		}
		qctx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
		next, err := e.trading.QueryOrder(qctx, p.Symbol, ack.OrderID)
		cancel()
		if err != nil {
			logger.Warnf("executor: query order %s %s: %v", p.Symbol, ack.OrderID, err)
			continue
		}
		next.Fills = mergeFills(ack.Fills, next.Fills)
		ack = next
	}
	if ack.Status.Final() {
		return ack, false
	}
	if e.cfg.AllowPartial && ack.ExecutedQty > 0 {
		logger.Infof("executor: %s order %s partially filled %.8g/%.8g, remainder left resting",
			p.Symbol, ack.OrderID, ack.ExecutedQty, p.QtyBase)
		return ack, false
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()
	canceled, err := e.trading.CancelOrder(cctx, p.Symbol, ack.OrderID)
	if err != nil {
		logger.Warnf("executor: cancel order %s %s: %v", p.Symbol, ack.OrderID, err)
		return ack, true
	}
	canceled.Fills = mergeFills(ack.Fills, canceled.Fills)
	if canceled.ExecutedQty < ack.ExecutedQty {
		canceled.ExecutedQty, canceled.CumQuote = ack.ExecutedQty, ack.CumQuote
	}
	return canceled, true
}

func mergeFills(prev, next []exchange.Fill) []exchange.Fill {
	if len(next) >= len(prev) {
		return next
	}
	return prev
}

// stealthDelay 在 [MinDelay, MaxDelay] 内随机等待，不超过剩余预算。
func (e *Executor) stealthDelay(ctx context.Context, precheckStart time.Time) error {
	s := e.cfg.Stealth
	if !s.Enabled || s.MaxDelay <= 0 {
		return nil
	}
	d := s.MinDelay
	if span := s.MaxDelay - s.MinDelay; span > 0 {
		e.rndMu.Lock()
		d += time.Duration(e.rnd.Int63n(int64(span) + 1))
		e.rndMu.Unlock()
	}
	if s.Budget > 0 {
		remaining := s.Budget - e.now().Sub(precheckStart)
		if remaining < 0 {
			remaining = 0
		}
		if d > remaining {
			d = remaining
		}
	}
	if d <= 0 {
		return nil
	}
	if err := e.sleep(ctx, d); err != nil {
		return &outcome.NetworkError{Op: "stealth", Err: err}
	}
	return nil
}

func (e *Executor) reject(p types.OrderPlan, reason types.Reason, detail string) types.OrderResult {
	res := types.Rejected(p, types.StatusRejected, string(reason))
	res.Error = detail
	e.recorder.ObserveOrder(p.Symbol, p.Side, res.Status)
	e.recorder.IncRejection(reason)
	return res
}

// fail 将提交阶段的错误分类为结果；不修改冷却与敞口。
func (e *Executor) fail(p types.OrderPlan, err error, elapsed time.Duration) types.OrderResult {
	cls := outcome.Classify(err)
	res := types.OrderResult{
		Symbol: p.Symbol,
		Side:   p.Side,
		Status: cls.Status,
		Error:  err.Error(),
		State:  types.ExecError,
		Raw:    map[string]any{"exception_type": cls.Type},
	}
	var exErr *outcome.ExchangeError
	if errors.As(err, &exErr) {
		res.State = types.ExecRejected
		res.Reason = exErr.Message
	}
	logger.Event("order failed", "symbol", p.Symbol, "side", p.Side, "status", res.Status, "type", cls.Type, "error", res.Error)
	e.recorder.ObserveOrder(p.Symbol, p.Side, res.Status)
	e.recorder.IncException(cls.Type)
	if elapsed > 0 {
		e.recorder.ObserveExecution(elapsed)
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
