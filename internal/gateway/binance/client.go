// Package binance 基于 go-binance SDK 实现现货交易所适配器。
package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"

	"spotpilot/internal/gateway/exchange"
	"spotpilot/internal/logger"
	"spotpilot/internal/outcome"
	"spotpilot/internal/pkg/circuit"
	"spotpilot/internal/pkg/quant"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"
)

// Client 实现 exchange.Exchange。所有请求共享同一个限速器；下单路径额外经过熔断器。
type Client struct {
	cfg     Config
	api     *binance.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	api := binance.NewClient(final.APIKey, final.APISecret)
	api.BaseURL = final.BaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	api.HTTPClient = httpClient
	breaker := circuit.New(circuit.Config{
		Name:      "binance-orders",
		Threshold: final.BreakerThreshold,
		Cooldown:  final.BreakerCooldown,
		Countable: isNetwork,
		OnTransition: func(t circuit.Transition) {
			logger.Event("breaker transition", "name", t.Name, "from", t.From.String(), "to", t.To.String(), "failures", t.Failures)
		},
	})
	return &Client{
		cfg:     final,
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(final.RequestsPerSec), final.Burst),
		breaker: breaker,
	}, nil
}

func (c *Client) Name() string { return "binance" }

// Breaker 暴露下单熔断器状态。
func (c *Client) Breaker() *circuit.Breaker { return c.breaker }

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &outcome.NetworkError{Op: op, Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	return nil
}

// guarded 对下单类请求执行熔断；只有传输层失败计入熔断。
func (c *Client) guarded(op string, fn func() error) error {
	err := c.breaker.Do(fn)
	if errors.Is(err, circuit.ErrOpen) {
		return &outcome.NetworkError{Op: op, Err: err}
	}
	return err
}

func isNetwork(err error) bool {
	var netErr *outcome.NetworkError
	return errors.As(err, &netErr)
}

// translate 将 SDK 错误映射为 outcome 中的类型化错误。
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &outcome.ExchangeError{Code: apiErr.Code, Message: apiErr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &outcome.NetworkError{Op: op, Err: err, Timeout: true}
	}
	if errors.Is(err, context.Canceled) {
		return &outcome.NetworkError{Op: op, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &outcome.NetworkError{Op: op, Err: err, Timeout: ne.Timeout()}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &outcome.NetworkError{Op: op, Err: err}
	}
	logger.Debugf("binance %s unclassified error: %v", op, err)
	return fmt.Errorf("binance %s: %w", op, err)
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &outcome.RuleViolationError{Rule: "order_id", Detail: fmt.Sprintf("invalid binance order id %q", raw)}
	}
	return id, nil
}

func parseFloat(v string) float64 {
	return quant.Parse(v)
}

var _ exchange.Exchange = (*Client)(nil)
