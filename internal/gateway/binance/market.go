package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"
)

const maxKlineLimit = 1000

func (c *Client) LastPrice(ctx context.Context, sym string) (float64, error) {
	sym = symbol.Normalize(sym)
	if err := c.wait(ctx, "price"); err != nil {
		return 0, err
	}
	prices, err := c.api.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return 0, translate("price", err)
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, sym) {
			if v := parseFloat(p.Price); v > 0 {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("price not available for %s", sym)
}

func (c *Client) OrderBook(ctx context.Context, sym string, depth int) (types.OrderBook, error) {
	sym = symbol.Normalize(sym)
	if depth <= 0 {
		depth = 20
	}
	if err := c.wait(ctx, "depth"); err != nil {
		return types.OrderBook{}, err
	}
	res, err := c.api.NewDepthService().Symbol(sym).Limit(depth).Do(ctx)
	if err != nil {
		return types.OrderBook{}, translate("depth", err)
	}
	book := types.OrderBook{
		Bids: make([]types.Level, 0, len(res.Bids)),
		Asks: make([]types.Level, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, types.Level{Price: parseFloat(b.Price), Qty: parseFloat(b.Quantity)})
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, types.Level{Price: parseFloat(a.Price), Qty: parseFloat(a.Quantity)})
	}
	return book, nil
}

// Klines 返回已收盘的 K 线，最后一根未收盘时丢弃。
func (c *Client) Klines(ctx context.Context, sym, interval string, limit int) ([]types.Candle, error) {
	sym = symbol.Normalize(sym)
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	// 区分大小写："1M" 是月线，"1m" 是分钟线。
	interval = strings.TrimSpace(interval)
	if sym == "" || interval == "" {
		return nil, fmt.Errorf("symbol and interval are required")
	}
	if err := c.wait(ctx, "klines"); err != nil {
		return nil, err
	}
	kls, err := c.api.NewKlinesService().Symbol(sym).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, translate("klines", err)
	}
	out := make([]types.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, types.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			TakerBuy:  parseFloat(kl.TakerBuyBaseAssetVolume),
			Trades:    kl.TradeNum,
		})
	}
	if n := len(out); n > 0 && out[n-1].CloseTime > time.Now().UnixMilli() {
		out = out[:n-1]
	}
	return out, nil
}

// SymbolInfo 从 exchangeInfo 过滤器中读取 tick/step/最小名义额。
func (c *Client) SymbolInfo(ctx context.Context, sym string) (types.SymbolRules, error) {
	sym = symbol.Normalize(sym)
	if err := c.wait(ctx, "exchange_info"); err != nil {
		return types.SymbolRules{}, err
	}
	info, err := c.api.NewExchangeInfoService().Symbol(sym).Do(ctx)
	if err != nil {
		return types.SymbolRules{}, translate("exchange_info", err)
	}
	for _, s := range info.Symbols {
		if !strings.EqualFold(s.Symbol, sym) {
			continue
		}
		rules := types.SymbolRules{
			Symbol:     sym,
			QuoteAsset: s.QuoteAsset,
			BaseAsset:  s.BaseAsset,
		}
		for _, f := range s.Filters {
			switch filterString(f, "filterType") {
			case "PRICE_FILTER":
				rules.TickSize = parseFloat(filterString(f, "tickSize"))
			case "LOT_SIZE":
				rules.StepSize = parseFloat(filterString(f, "stepSize"))
			case "NOTIONAL", "MIN_NOTIONAL":
				if v := parseFloat(filterString(f, "minNotional")); v > 0 {
					rules.MinNotional = v
				}
			}
		}
		return rules, nil
	}
	return types.SymbolRules{}, fmt.Errorf("symbol %s not listed", sym)
}

func filterString(f map[string]interface{}, key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
