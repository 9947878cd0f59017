// Package quant 提供基于 decimal 的价格/数量网格运算，避免浮点误差导致的
// step/tick 不整除或最小名义额误判。
package quant

import (
	"math"

	"github.com/shopspring/decimal"
)

func dec(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// FloorToStep 将数量向下取整到 step 网格。step<=0 时原样返回。
func FloorToStep(qty, step float64) float64 {
	if step <= 0 || qty <= 0 {
		return math.Max(qty, 0)
	}
	s := dec(step)
	k := dec(qty).Div(s).Floor()
	return toFloat(k.Mul(s))
}

// RoundToTick 将价格按 half-up 规则取整到 tick 网格。
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 || price <= 0 {
		return math.Max(price, 0)
	}
	t := dec(tick)
	k := dec(price).Div(t).Round(0)
	return toFloat(k.Mul(t))
}

// FloorToTick rounds a price down onto the tick grid.
func FloorToTick(price, tick float64) float64 {
	if tick <= 0 || price <= 0 {
		return math.Max(price, 0)
	}
	t := dec(tick)
	return toFloat(dec(price).Div(t).Floor().Mul(t))
}

// CeilToTick rounds a price up onto the tick grid.
func CeilToTick(price, tick float64) float64 {
	if tick <= 0 || price <= 0 {
		return math.Max(price, 0)
	}
	t := dec(tick)
	return toFloat(dec(price).Div(t).Ceil().Mul(t))
}

// IsMultiple 判断 v 是否为 unit 的整数倍（精确十进制比较）。
func IsMultiple(v, unit float64) bool {
	if unit <= 0 {
		return false
	}
	return dec(v).Mod(dec(unit)).IsZero()
}

// Notional 精确计算 qty*price。
func Notional(qty, price float64) float64 {
	return toFloat(dec(qty).Mul(dec(price)))
}

// MeetsMinNotional 以十进制比较 qty*price >= min，避免 4.9999999 之类的误拒。
func MeetsMinNotional(qty, price, minNotional float64) bool {
	return dec(qty).Mul(dec(price)).GreaterThanOrEqual(dec(minNotional))
}

// Deviation 返回 |v-ref|/ref 的十进制值；ref<=0 时为 0。
func Deviation(v, ref float64) decimal.Decimal {
	if ref <= 0 {
		return decimal.Zero
	}
	r := dec(ref)
	return dec(v).Sub(r).Abs().Div(r)
}

// SpreadRatio 返回 (ask-bid)/mid 的十进制值。
func SpreadRatio(bid, ask float64) decimal.Decimal {
	b, a := dec(bid), dec(ask)
	mid := a.Add(b).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return decimal.Zero
	}
	return a.Sub(b).Div(mid)
}

// Exceeds 判断比例是否严格高于上限；等于上限视为通过。
func Exceeds(ratio decimal.Decimal, limit float64) bool {
	return ratio.GreaterThan(dec(limit))
}

// Float 将十进制结果转回 float64，用于展示与指标。
func Float(d decimal.Decimal) float64 {
	return toFloat(d)
}

// Decimals 返回 step 的小数位数，例如 0.001 -> 3。
func Decimals(step float64) int32 {
	if step <= 0 {
		return 8
	}
	exp := dec(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// Format 以 step 的精度格式化数值，用于交易所下单参数。
func Format(v, step float64) string {
	return dec(v).StringFixed(Decimals(step))
}

// Add/Sub/Mul/Div 为调用方提供精确的四则运算。
func Add(a, b float64) float64 { return toFloat(dec(a).Add(dec(b))) }
func Sub(a, b float64) float64 { return toFloat(dec(a).Sub(dec(b))) }
func Mul(a, b float64) float64 { return toFloat(dec(a).Mul(dec(b))) }

func Div(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return toFloat(dec(a).Div(dec(b)))
}

// Parse 解析交易所返回的十进制字符串，失败返回 0。
func Parse(raw string) float64 {
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return toFloat(d)
}
