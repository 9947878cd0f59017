package exchange

import (
	"spotpilot/internal/types"
)

// OrderStatus mirrors the spot order lifecycle reported by the exchange.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Final reports whether the exchange will not fill the order any further.
func (s OrderStatus) Final() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

// OrderRequest 已完成网格量化的下单请求。
type OrderRequest struct {
	Symbol        string
	Side          types.Side
	Qty           float64
	Price         float64
	TimeInForce   types.TimeInForce
	PostOnly      bool
	ClientOrderID string
	// Rules 用于按交易所精度格式化数量与价格。
	Rules types.SymbolRules
}

// Fill 是单笔成交明细。
type Fill struct {
	Price           float64 `json:"price"`
	Qty             float64 `json:"qty"`
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commission_asset"`
}

// OrderAck 是交易所对下单/查询/撤单的应答。
type OrderAck struct {
	OrderID       string         `json:"order_id"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	Symbol        string         `json:"symbol"`
	Side          types.Side     `json:"side"`
	Status        OrderStatus    `json:"status"`
	ExecutedQty   float64        `json:"executed_qty"`
	CumQuote      float64        `json:"cum_quote"`
	Fills         []Fill         `json:"fills,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
}
