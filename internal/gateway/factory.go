package gateway

import (
	"fmt"

	"spotpilot/internal/config"
	"spotpilot/internal/gateway/binance"
	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/gateway/paper"
	"spotpilot/internal/logger"
)

// NewExchangeFromConfig dry_run 时返回以真实行情驱动的模拟交易所，否则返回实盘客户端。
func NewExchangeFromConfig(cfg *config.Config) (exchange.Exchange, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	ex := cfg.Exchange
	client, err := binance.New(binance.Config{
		BaseURL:          ex.BinanceBaseURL,
		APIKey:           ex.APIKey,
		APISecret:        ex.APISecret,
		ProxyURL:         ex.ProxyURL,
		HTTPTimeout:      ex.HTTPTimeout(),
		RequestsPerSec:   ex.RequestsPerSec,
		BreakerThreshold: ex.BreakerThreshold,
		BreakerCooldown:  ex.BreakerCooldown(),
	})
	if err != nil {
		return nil, err
	}
	if !cfg.App.DryRun {
		return client, nil
	}
	logger.Infof("dry_run enabled: paper exchange over %s market data, quote balance %.2f %s",
		client.Name(), ex.PaperQuoteBalance, ex.QuoteAsset)
	return paper.New(paper.Config{
		QuoteAsset: ex.QuoteAsset,
		FeeRate:    ex.FeeRate,
		Balances:   map[string]float64{ex.QuoteAsset: ex.PaperQuoteBalance},
	}, client), nil
}
