// Package exchange 定义核心所需的现货交易所能力，交易所细节由适配器实现。
package exchange

import (
	"context"

	"spotpilot/internal/types"
)

// MarketData 提供行情。
type MarketData interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	// OrderBook 两侧按最优价在前排序。
	OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
}

// SymbolInfo 提供币种交易规则。
type SymbolInfo interface {
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolRules, error)
}

// Account 提供资产余额。
type Account interface {
	FreeBalance(ctx context.Context, asset string) (float64, error)
}

// Trading 是下单能力。
type Trading interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	PlaceLimitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	QueryOrder(ctx context.Context, symbol, orderID string) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (OrderAck, error)
	CancelOpenOrders(ctx context.Context, symbol string) error
}

// Exchange 聚合全部能力。
type Exchange interface {
	Name() string
	MarketData
	SymbolInfo
	Account
	Trading
}
