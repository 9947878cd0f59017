package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SignalBundle 是信号源针对单个币种输出的快照，发出后不可变。
type SignalBundle struct {
	Symbol     string         `json:"symbol"`
	Timestamp  time.Time      `json:"timestamp"`
	BuyScore   float64        `json:"buy_score"`
	SellScore  float64        `json:"sell_score"`
	RegimeOn   bool           `json:"regime_on"`
	Volatility float64        `json:"volatility"`
	Extras     map[string]any `json:"extras,omitempty"`
}

// Validate 检查分数区间与波动率。
func (s SignalBundle) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("signal: symbol is required")
	}
	if !inUnit(s.BuyScore) {
		return fmt.Errorf("signal %s: buy_score %v outside [0,1]", s.Symbol, s.BuyScore)
	}
	if !inUnit(s.SellScore) {
		return fmt.Errorf("signal %s: sell_score %v outside [0,1]", s.Symbol, s.SellScore)
	}
	if math.IsNaN(s.Volatility) || s.Volatility < 0 {
		return fmt.Errorf("signal %s: volatility %v must be >= 0", s.Symbol, s.Volatility)
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
