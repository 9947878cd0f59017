package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/pkg/quant"
	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
)

func (c *Client) FreeBalance(ctx context.Context, asset string) (float64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if err := c.wait(ctx, "account"); err != nil {
		return 0, err
	}
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, translate("account", err)
	}
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, asset) {
			return parseFloat(b.Free), nil
		}
	}
	return 0, nil
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(symbol.Normalize(req.Symbol)).
		Side(sideType(req.Side)).
		Type(binance.OrderTypeMarket).
		Quantity(quant.Format(req.Qty, req.Rules.StepSize)).
		NewClientOrderID(clientID(req)).
		NewOrderRespType(binance.NewOrderRespTypeFULL)
	return c.submit(ctx, svc)
}

// PlaceLimitOrder post_only 时使用 LIMIT_MAKER（不带 timeInForce）。
func (c *Client) PlaceLimitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(symbol.Normalize(req.Symbol)).
		Side(sideType(req.Side)).
		Quantity(quant.Format(req.Qty, req.Rules.StepSize)).
		Price(quant.Format(req.Price, req.Rules.TickSize)).
		NewClientOrderID(clientID(req)).
		NewOrderRespType(binance.NewOrderRespTypeFULL)
	if req.PostOnly {
		svc = svc.Type(binance.OrderTypeLimitMaker)
	} else {
		svc = svc.Type(binance.OrderTypeLimit).TimeInForce(tifType(req.TimeInForce))
	}
	return c.submit(ctx, svc)
}

func (c *Client) submit(ctx context.Context, svc *binance.CreateOrderService) (exchange.OrderAck, error) {
	if err := c.wait(ctx, "place"); err != nil {
		return exchange.OrderAck{}, err
	}
	var res *binance.CreateOrderResponse
	err := c.guarded("place", func() error {
		var callErr error
		res, callErr = svc.Do(ctx)
		return translate("place", callErr)
	})
	if err != nil {
		return exchange.OrderAck{}, err
	}
	ack := exchange.OrderAck{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          types.ParseSide(string(res.Side)),
		Status:        exchange.OrderStatus(res.Status),
		ExecutedQty:   parseFloat(res.ExecutedQuantity),
		CumQuote:      parseFloat(res.CummulativeQuoteQuantity),
		Raw: map[string]any{
			"venue":         "binance",
			"transact_time": res.TransactTime,
			"type":          string(res.Type),
		},
	}
	for _, f := range res.Fills {
		if f == nil {
			continue
		}
		ack.Fills = append(ack.Fills, exchange.Fill{
			Price:           parseFloat(f.Price),
			Qty:             parseFloat(f.Quantity),
			Commission:      parseFloat(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}
	return ack, nil
}

// QueryOrder 查询接口不返回逐笔成交，Fills 为空。
func (c *Client) QueryOrder(ctx context.Context, sym, orderID string) (exchange.OrderAck, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return exchange.OrderAck{}, err
	}
	if err := c.wait(ctx, "query"); err != nil {
		return exchange.OrderAck{}, err
	}
	o, err := c.api.NewGetOrderService().Symbol(symbol.Normalize(sym)).OrderID(id).Do(ctx)
	if err != nil {
		return exchange.OrderAck{}, translate("query", err)
	}
	return exchange.OrderAck{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          types.ParseSide(string(o.Side)),
		Status:        exchange.OrderStatus(o.Status),
		ExecutedQty:   parseFloat(o.ExecutedQuantity),
		CumQuote:      parseFloat(o.CummulativeQuoteQuantity),
		Raw:           map[string]any{"venue": "binance"},
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, sym, orderID string) (exchange.OrderAck, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return exchange.OrderAck{}, err
	}
	if err := c.wait(ctx, "cancel"); err != nil {
		return exchange.OrderAck{}, err
	}
	res, err := c.api.NewCancelOrderService().Symbol(symbol.Normalize(sym)).OrderID(id).Do(ctx)
	if err != nil {
		return exchange.OrderAck{}, translate("cancel", err)
	}
	return exchange.OrderAck{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          types.ParseSide(string(res.Side)),
		Status:        exchange.OrderStatus(res.Status),
		ExecutedQty:   parseFloat(res.ExecutedQuantity),
		CumQuote:      parseFloat(res.CummulativeQuoteQuantity),
		Raw:           map[string]any{"venue": "binance"},
	}, nil
}

func (c *Client) CancelOpenOrders(ctx context.Context, sym string) error {
	if err := c.wait(ctx, "cancel_all"); err != nil {
		return err
	}
	_, err := c.api.NewCancelOpenOrdersService().Symbol(symbol.Normalize(sym)).Do(ctx)
	if err != nil {
		return fmt.Errorf("cancel open orders %s: %w", sym, translate("cancel_all", err))
	}
	return nil
}

func sideType(s types.Side) binance.SideType {
	if s == types.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func tifType(t types.TimeInForce) binance.TimeInForceType {
	if t == types.TimeInForceIOC {
		return binance.TimeInForceTypeIOC
	}
	return binance.TimeInForceTypeGTC
}

func clientID(req exchange.OrderRequest) string {
	if req.ClientOrderID != "" {
		return req.ClientOrderID
	}
	return "sp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
