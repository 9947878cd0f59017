// Package risk 实现下单前的规则/风控闸门链。闸门顺序固定，首个拒绝即短路；
// 校验结果是值而非错误。
package risk

import (
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"spotpilot/internal/logger"
	"spotpilot/internal/outcome"
	"spotpilot/internal/types"
)

// Ledger 是校验链依赖的冷却/敞口注册表能力。
type Ledger interface {
	Check(symbol string, now time.Time, skipCooldown bool) (bool, types.Reason)
	CooldownRemaining(symbol string, now time.Time) time.Duration
	Exposure(symbol string) float64
	TotalExposure() float64
	Halted(now time.Time) bool
	LatchHalt(now time.Time)
}

// Config 中 *_pct 字段为小数比例，0 表示不检查。
type Config struct {
	FeeRate              float64
	MaxSlippagePct       float64
	MaxSpreadPct         float64
	MaxImpactPct         float64
	MaxAllInCostPct      float64
	DailyLossLimitPct    float64
	MaxTotalExposurePct  float64
	MaxSymbolExposurePct float64
	PositionSizePct      float64
	AllowAutoscale       bool
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
	SkipCooldown         bool
}

// Input 是一次校验所需的全部快照。
type Input struct {
	Plan    types.OrderPlan
	Rules   types.SymbolRules
	Market  types.MarketState
	Account types.AccountState
	Now     time.Time
}

type Validator struct {
	cfg    Config
	ledger Ledger
}

func NewValidator(cfg Config, ledger Ledger) *Validator {
	return &Validator{cfg: cfg, ledger: ledger}
}

func (v *Validator) Config() Config { return v.cfg }

// check 是闸门之间传递的工作状态。
type check struct {
	in   Input
	res  types.RiskCheckResult
	side types.Side

	qty     float64
	quote   float64
	entry   float64
	last    float64
	ref     float64
	derived bool
	sl      float64
	tp      float64
}

type gate struct {
	name string
	run  func(v *Validator, c *check) bool
}

var gates = []gate{
	{"side", (*Validator).gateSide},
	{"halt_latched", (*Validator).gateHaltLatched},
	{"quantity", (*Validator).gateQuantity},
	{"reference_price", (*Validator).gateReference},
	{"sizing_buy", (*Validator).gateSizeBuy},
	{"sizing_sell", (*Validator).gateSizeSell},
	{"quantize", (*Validator).gateQuantize},
	{"min_notional", (*Validator).gateMinNotional},
	{"balance", (*Validator).gateBalance},
	{"stop_ordering", (*Validator).gateOrdering},
	{"market_quality", (*Validator).gateMarketQuality},
	{"trade_pacing", (*Validator).gatePacing},
	{"exposure", (*Validator).gateExposure},
	{"daily_loss", (*Validator).gateDailyLoss},
}

// Validate 运行闸门链。闸门内部 panic 被恢复为 validator_error。
func (v *Validator) Validate(in Input) (res types.RiskCheckResult) {
	c := &check{in: in, side: in.Plan.Side}
	if c.in.Now.IsZero() {
		c.in.Now = time.Now()
	}
	current := ""
	defer func() {
		if r := recover(); r != nil {
			kind := outcome.Classify(&outcome.PanicError{Value: r}).Type
			logger.Errorf("risk: gate %s %s for %s: %v", current, kind, in.Plan.Symbol, r)
			logger.Stack("risk."+current, debug.Stack())
			res = types.Reject(types.ReasonValidatorError, fmt.Sprintf("%s in gate %s: %v", kind, current, r))
		}
	}()
	for _, g := range gates {
		current = g.name
		if !g.run(v, c) {
			c.res.OK = false
			return c.res
		}
	}
	c.res.OK = true
	c.res.RiskScore = v.riskScore(c)
	return c.res
}

func (c *check) reject(reason types.Reason, format string, args ...any) bool {
	c.res.Reasons = append(c.res.Reasons, reason)
	c.res.Detail = fmt.Sprintf(format, args...)
	return false
}

func (c *check) note(format string, args ...any) {
	c.res.Notes = append(c.res.Notes, fmt.Sprintf(format, args...))
}

func (c *check) notional() float64 {
	return c.qty * c.ref
}

func (c *check) equity() float64 {
	if c.in.Account.Equity > 0 {
		return c.in.Account.Equity
	}
	return c.in.Account.QuoteFree
}

// riskScore 取各项限额利用率的最大值，范围 [0,1]。
func (v *Validator) riskScore(c *check) float64 {
	score := 0.0
	eq := c.equity()
	if c.side == types.SideBuy && eq > 0 {
		n := c.notional()
		if v.cfg.MaxTotalExposurePct > 0 {
			score = math.Max(score, (v.ledger.TotalExposure()+n)/(v.cfg.MaxTotalExposurePct*eq))
		}
		if v.cfg.MaxSymbolExposurePct > 0 {
			score = math.Max(score, (v.ledger.Exposure(c.in.Plan.Symbol)+n)/(v.cfg.MaxSymbolExposurePct*eq))
		}
	}
	if v.cfg.MaxAllInCostPct > 0 {
		score = math.Max(score, (v.cfg.FeeRate+c.res.ExpectedSlippage)/v.cfg.MaxAllInCostPct)
	}
	if start := c.in.Account.DayStartEquity; start > 0 && v.cfg.DailyLossLimitPct > 0 {
		score = math.Max(score, (start-c.in.Account.Equity)/(v.cfg.DailyLossLimitPct*start))
	}
	return math.Min(1, math.Max(0, score))
}
