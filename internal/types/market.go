package types

import "time"

// Level 是订单簿单档。
type Level struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook 两侧均按最优价在前排列。
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

func (b *OrderBook) BestBid() (Level, bool) {
	if b == nil || len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

func (b *OrderBook) BestAsk() (Level, bool) {
	if b == nil || len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Side returns the levels a taker on side consumes.
func (b *OrderBook) Side(side Side) []Level {
	if b == nil {
		return nil
	}
	if side == SideBuy {
		return b.Asks
	}
	return b.Bids
}

// MarketState 是校验链使用的行情快照；Book 可为空。
type MarketState struct {
	Symbol    string     `json:"symbol"`
	LastPrice float64    `json:"last_price"`
	Book      *OrderBook `json:"book,omitempty"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// AccountState 是账户余额与权益快照。
type AccountState struct {
	QuoteAsset     string  `json:"quote_asset"`
	QuoteFree      float64 `json:"quote_free"`
	BaseFree       float64 `json:"base_free"`
	Equity         float64 `json:"equity"`
	DayStartEquity float64 `json:"day_start_equity"`
	RealizedPnL    float64 `json:"realized_pnl"`
}

// Candle 是一根 K 线。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	// TakerBuy 是主动买入成交量（基础币）。
	TakerBuy float64 `json:"taker_buy_volume"`
	Trades   int64   `json:"trades"`
}
