// Package pipeline 串联 builder → validator → adjuster → executor。
// 同一币种的校验到成交在注册表锁内完成，保证 can_trade → submit → mark_trade 线性化。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"spotpilot/internal/logger"
	"spotpilot/internal/metrics"
	"spotpilot/internal/outcome"
	"spotpilot/internal/plan"
	"spotpilot/internal/risk"
	"spotpilot/internal/types"

	"github.com/google/uuid"
)

// RulesSource 提供币种规则。
type RulesSource interface {
	Get(ctx context.Context, symbol string) (types.SymbolRules, error)
}

// MarketSource 提供行情快照与估值用的标记价。
type MarketSource interface {
	Snapshot(ctx context.Context, symbol string) (types.MarketState, error)
	Marks() map[string]float64
}

// AccountSource 提供账户快照并记录执行耗时。
type AccountSource interface {
	State(ctx context.Context, symbol string, marks map[string]float64) (types.AccountState, error)
	RecordAttempt(d time.Duration, failed bool)
}

// Ledger 是币种串行锁与熔断状态。
type Ledger interface {
	Lock(symbol string) func()
	Halted(now time.Time) bool
}

type Executor interface {
	Execute(ctx context.Context, p types.OrderPlan, rules types.SymbolRules) types.OrderResult
}

// Sink 接收每一次完成的尝试（交易日志、事件总线），不参与决策。
type Sink interface {
	Record(ctx context.Context, a Attempt) error
}

// Attempt 是一次信号处理的完整记录。
type Attempt struct {
	ID       string                `json:"id"`
	Time     time.Time             `json:"time"`
	Symbol   string                `json:"symbol"`
	Action   types.Action          `json:"action"`
	Signal   types.SignalBundle    `json:"signal"`
	Plan     types.OrderPlan       `json:"plan"`
	Check    types.RiskCheckResult `json:"check"`
	Result   types.OrderResult     `json:"result"`
	Executed bool                  `json:"executed"`
	Duration time.Duration         `json:"duration"`
}

// Traded reports whether the attempt produced a result (rejected or executed).
func (a Attempt) Traded() bool {
	return a.Result.Status != ""
}

type Deps struct {
	Builder   *plan.Builder
	Validator *risk.Validator
	Adjuster  *plan.Adjuster
	Executor  Executor
	Rules     RulesSource
	Market    MarketSource
	Account   AccountSource
	Ledger    Ledger
	Recorder  metrics.Recorder
	Sinks     []Sink
}

type Pipeline struct {
	deps Deps
	now  func() time.Time
}

func New(deps Deps) *Pipeline {
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop{}
	}
	if deps.Builder == nil {
		deps.Builder = plan.NewBuilder()
	}
	if deps.Adjuster == nil {
		deps.Adjuster = plan.NewAdjuster(plan.Preferences{})
	}
	return &Pipeline{deps: deps, now: time.Now}
}

func (p *Pipeline) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// AddSink 在启动阶段挂接记录器。
func (p *Pipeline) AddSink(s Sink) {
	if s != nil {
		p.deps.Sinks = append(p.deps.Sinks, s)
	}
}

// Run 处理一个信号。HOLD/WAIT 不产生结果；error 只在拿不到规则或账户快照时返回。
func (p *Pipeline) Run(ctx context.Context, sig types.SignalBundle) (Attempt, error) {
	action := p.deps.Builder.Decide(sig)
	orderPlan, ok := p.deps.Builder.Build(sig)
	if !ok {
		logger.Debugf("pipeline: %s %s (buy=%.3f sell=%.3f regime=%v)", sig.Symbol, action, sig.BuyScore, sig.SellScore, sig.RegimeOn)
		return Attempt{ID: uuid.NewString(), Time: p.now(), Symbol: sig.Symbol, Action: action, Signal: sig}, nil
	}
	a, err := p.Submit(ctx, orderPlan)
	a.Action = action
	a.Signal = sig
	return a, err
}

// Submit 对一个已构造的计划执行校验、调整与下单。
func (p *Pipeline) Submit(ctx context.Context, orderPlan types.OrderPlan) (Attempt, error) {
	started := p.now()
	a := Attempt{
		ID:     uuid.NewString(),
		Time:   started,
		Symbol: orderPlan.Symbol,
		Action: types.Action(orderPlan.Side),
		Plan:   orderPlan,
	}
	unlock := p.deps.Ledger.Lock(orderPlan.Symbol)
	defer unlock()

	rules, err := p.deps.Rules.Get(ctx, orderPlan.Symbol)
	if err != nil {
		return a, fmt.Errorf("pipeline: rules %s: %w", orderPlan.Symbol, err)
	}
	mkt, err := p.deps.Market.Snapshot(ctx, orderPlan.Symbol)
	if err != nil {
		logger.Warnf("pipeline: market snapshot %s: %v", orderPlan.Symbol, err)
		mkt = types.MarketState{Symbol: orderPlan.Symbol, FetchedAt: started}
	}
	acct, err := p.deps.Account.State(ctx, orderPlan.Symbol, p.deps.Market.Marks())
	if err != nil {
		return a, fmt.Errorf("pipeline: account %s: %w", orderPlan.Symbol, err)
	}

	now := p.now()
	check := p.deps.Validator.Validate(risk.Input{
		Plan:    orderPlan,
		Rules:   rules,
		Market:  mkt,
		Account: acct,
		Now:     now,
	})
	a.Check = check
	p.deps.Recorder.SetHalted(p.deps.Ledger.Halted(now))
	if !check.OK {
		a.Result = p.rejected(orderPlan, check)
		a.Duration = p.now().Sub(started)
		p.emit(ctx, a)
		return a, nil
	}

	adjusted := p.deps.Adjuster.Apply(orderPlan, check)
	a.Plan = adjusted
	execStart := p.now()
	res := p.deps.Executor.Execute(ctx, adjusted, rules)
	p.deps.Account.RecordAttempt(p.now().Sub(execStart), !res.Success && res.Status != types.StatusRejected)
	a.Result = res
	a.Executed = true
	a.Duration = p.now().Sub(started)

	if res.Success {
		logger.Event("trade",
			"symbol", res.Symbol,
			"side", res.Side,
			"status", res.Status,
			"qty", res.FilledQty,
			"price", res.AvgPrice,
			"quote", res.FilledQuote,
			"fee", res.FeeQuote,
			"state", res.State,
			"order_id", res.OrderID,
		)
	} else if res.Status == types.StatusRejected {
		logger.Event("order rejected", "symbol", res.Symbol, "side", res.Side, "reason", res.Reason, "stage", "precheck", "detail", res.Error)
	}
	p.emit(ctx, a)
	return a, nil
}

func (p *Pipeline) rejected(orderPlan types.OrderPlan, check types.RiskCheckResult) types.OrderResult {
	reason := check.FirstReason()
	res := types.Rejected(orderPlan, outcome.ForReason(reason), check.ReasonString())
	res.Error = check.Detail
	if check.CooldownRemaining > 0 {
		res.Raw = map[string]any{"cooldown_seconds_remaining": check.CooldownRemaining}
	}
	p.deps.Recorder.ObserveOrder(orderPlan.Symbol, orderPlan.Side, res.Status)
	for _, r := range check.Reasons {
		p.deps.Recorder.IncRejection(r)
	}
	logger.Event("order rejected", "symbol", orderPlan.Symbol, "side", orderPlan.Side, "reason", res.Reason, "stage", "validator", "detail", check.Detail)
	return res
}

// emit 不受停止信号影响，记录失败只告警。
func (p *Pipeline) emit(ctx context.Context, a Attempt) {
	if len(p.deps.Sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range p.deps.Sinks {
		if err := s.Record(ctx, a); err != nil {
			logger.Warnf("pipeline: record %s %s: %v", a.Symbol, a.ID, err)
		}
	}
}
