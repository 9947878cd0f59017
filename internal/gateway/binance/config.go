package binance

import (
	"strings"
	"time"
)

// Config 描述现货 REST 客户端。
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	ProxyURL  string

	HTTPTimeout    time.Duration
	RequestsPerSec float64
	Burst          int

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.RequestsPerSec <= 0 {
		out.RequestsPerSec = 10
	}
	if out.Burst <= 0 {
		out.Burst = int(out.RequestsPerSec)
		if out.Burst < 1 {
			out.Burst = 1
		}
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 30 * time.Second
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	return out
}
