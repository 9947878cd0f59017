package executor

import (
	"context"
	"strings"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/logger"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"
)

// FillSummary 是从交易所应答汇总出的成交。
type FillSummary struct {
	Qty      float64
	Quote    float64
	AvgPrice float64
	FeeQuote float64
	Raw      map[string]any
}

// parseFills 手续费以报价资产计：报价资产直接累加；基础资产按新鲜参考价折算；
// 其他资产计 0 并记录在 Raw 中。应答不带逐笔成交时按费率估算。
func (e *Executor) parseFills(ctx context.Context, p types.OrderPlan, rules types.SymbolRules, ack exchange.OrderAck, last float64) FillSummary {
	out := FillSummary{Raw: map[string]any{"order_status": string(ack.Status)}}
	for k, v := range ack.Raw {
		out.Raw[k] = v
	}
	quoteAsset, baseAsset := assets(p.Symbol, rules, e.cfg.QuoteAsset)

	if len(ack.Fills) == 0 {
		out.Qty = ack.ExecutedQty
		out.Quote = ack.CumQuote
		if out.Qty > 0 {
			out.FeeQuote = out.Quote * e.cfg.FeeRate
			out.Raw["fee_estimated"] = true
		}
	} else {
		var baseFee float64
		unconverted := map[string]float64{}
		for _, f := range ack.Fills {
			out.Qty += f.Qty
			out.Quote += f.Qty * f.Price
			asset := strings.ToUpper(f.CommissionAsset)
			switch {
			case f.Commission == 0:
			case asset == quoteAsset || asset == "":
				out.FeeQuote += f.Commission
			case asset == baseAsset:
				baseFee += f.Commission
			default:
				unconverted[asset] += f.Commission
			}
		}
		if ack.CumQuote > 0 {
			out.Quote = ack.CumQuote
		}
		if baseFee > 0 {
			price, err := e.market.LastPrice(ctx, p.Symbol)
			if err != nil || price <= 0 {
				logger.Warnf("executor: fee conversion price %s unavailable (%v); using fill average", p.Symbol, err)
				price = last
				if out.Qty > 0 {
					price = out.Quote / out.Qty
				}
			}
			out.FeeQuote += baseFee * price
			out.Raw["fee_base_amount"] = baseFee
		}
		for asset, amount := range unconverted {
			out.Raw["fee_unconverted_asset"] = asset
			out.Raw["fee_unconverted_amount"] = amount
		}
	}
	if out.Qty > 0 {
		out.AvgPrice = out.Quote / out.Qty
	}
	return out
}

func assets(sym string, rules types.SymbolRules, fallbackQuote string) (quote, base string) {
	quote = strings.ToUpper(rules.QuoteAsset)
	base = strings.ToUpper(rules.BaseAsset)
	parsed := symbol.Parse(sym)
	if quote == "" {
		quote = parsed.Quote
	}
	if quote == "" {
		quote = strings.ToUpper(fallbackQuote)
	}
	if base == "" {
		base = parsed.Base
	}
	return quote, base
}
