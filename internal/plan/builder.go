// Package plan 把信号转换为下单计划，并按校验结果生成调整后的新计划。
package plan

import (
	"math"
	"strconv"

	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"
)

// DefaultThreshold 是开仓/离场所需的最低分数。
const DefaultThreshold = 0.6

const (
	TagSpotOnly = "spot-only"
	TagExit     = "exit"
)

// Builder 无状态，可被任意打分器替换。
type Builder struct {
	Threshold float64
}

func NewBuilder() *Builder {
	return &Builder{Threshold: DefaultThreshold}
}

// Decide 返回信号对应的动作；regime 关闭时为 WAIT。
func (b *Builder) Decide(sig types.SignalBundle) types.Action {
	th := b.threshold()
	switch {
	case !sig.RegimeOn:
		return types.ActionWait
	case sig.BuyScore >= th && sig.BuyScore >= sig.SellScore:
		return types.ActionBuy
	case sig.SellScore >= th && sig.SellScore > sig.BuyScore:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// Build 返回计划；HOLD/WAIT 时第二个返回值为 false。数量留给校验链定尺寸。
func (b *Builder) Build(sig types.SignalBundle) (types.OrderPlan, bool) {
	action := b.Decide(sig)
	plan := types.OrderPlan{
		Symbol: symbol.Normalize(sig.Symbol),
		Meta: map[string]string{
			"buy_score":  strconv.FormatFloat(sig.BuyScore, 'f', -1, 64),
			"sell_score": strconv.FormatFloat(sig.SellScore, 'f', -1, 64),
		},
	}
	switch action {
	case types.ActionBuy:
		plan.Side = types.SideBuy
		plan.Confidence = math.Min(1, sig.BuyScore)
		plan.Tags = []string{TagSpotOnly}
	case types.ActionSell:
		plan.Side = types.SideSell
		plan.Confidence = math.Min(1, sig.SellScore)
		plan.Exit = true
		plan.Tags = []string{TagSpotOnly, TagExit}
	default:
		return types.OrderPlan{}, false
	}
	return plan, true
}

func (b *Builder) threshold() float64 {
	if b == nil || b.Threshold <= 0 {
		return DefaultThreshold
	}
	return b.Threshold
}
