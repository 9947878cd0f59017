package app

import (
	"fmt"
	"strings"

	"spotpilot/internal/config"
	"spotpilot/internal/logger"
)

type StartupSummary struct {
	Exchange  string
	DryRun    bool
	Symbols   []string
	Signal    string
	Execution ExecutionSummary
	Risk      RiskSummary
	Outputs   []string
}

type ExecutionSummary struct {
	OrderType      string
	TimeInForce    string
	PostOnly       bool
	AllowPartial   bool
	MaxSlippagePct float64
	Stealth        bool
}

type RiskSummary struct {
	DailyLossLimitPct    float64
	MaxTotalExposurePct  float64
	MaxSymbolExposurePct float64
	MaxTradesPerHour     int
	MaxTradesPerDay      int
	MinTradeSpacingSec   float64
	PositionSizePct      float64
}

func newStartupSummary(cfg *config.Config, exchangeName string, a *App) *StartupSummary {
	s := &StartupSummary{
		Exchange: exchangeName,
		DryRun:   cfg.App.DryRun,
		Symbols:  cfg.Cycle.Symbols,
		Signal:   cfg.Signal.Source,
		Execution: ExecutionSummary{
			OrderType:      cfg.Execution.OrderType,
			TimeInForce:    cfg.Execution.TimeInForce,
			PostOnly:       cfg.Execution.PostOnly,
			AllowPartial:   cfg.Execution.AllowPartial,
			MaxSlippagePct: cfg.Execution.MaxSlippagePct,
			Stealth:        cfg.Stealth.Enabled,
		},
		Risk: RiskSummary{
			DailyLossLimitPct:    cfg.Risk.DailyLossLimitPct,
			MaxTotalExposurePct:  cfg.Risk.MaxTotalExposurePct,
			MaxSymbolExposurePct: cfg.Risk.MaxSymbolExposurePct,
			MaxTradesPerHour:     cfg.Risk.MaxTradesPerHour,
			MaxTradesPerDay:      cfg.Risk.MaxTradesPerDay,
			MinTradeSpacingSec:   cfg.Risk.MinTradeSpacingSec,
			PositionSizePct:      cfg.Sizing.PositionSizePct,
		},
	}
	for _, srv := range a.servers {
		s.Outputs = append(s.Outputs, "http "+srv.Addr())
	}
	if a.journal != nil {
		s.Outputs = append(s.Outputs, "journal "+cfg.Journal.Path)
	}
	if cfg.Events.KafkaEnabled {
		s.Outputs = append(s.Outputs, fmt.Sprintf("kafka %s@%s", cfg.Events.KafkaTopic, formatList(cfg.Events.KafkaBrokers)))
	}
	return s
}

// Lines 返回摘要文本，Print 经由 logger 输出。
func (s *StartupSummary) Lines() []string {
	mode := "live"
	if s.DryRun {
		mode = "dry_run (mock-ok)"
	}
	out := []string{
		strings.Repeat("=", 60),
		"启动配置摘要 (STARTUP SUMMARY)",
		strings.Repeat("=", 60),
		fmt.Sprintf("[交易所] %s  模式: %s", s.Exchange, mode),
		fmt.Sprintf("[币种] %s", formatList(s.Symbols)),
		fmt.Sprintf("[信号源] %s", s.Signal),
		fmt.Sprintf("[下单] type=%s tif=%s post_only=%v allow_partial=%v max_slippage=%.4f stealth=%v",
			s.Execution.OrderType, s.Execution.TimeInForce, s.Execution.PostOnly,
			s.Execution.AllowPartial, s.Execution.MaxSlippagePct, s.Execution.Stealth),
		fmt.Sprintf("[风控] daily_loss=%.4f exposure total=%.4f symbol=%.4f trades/h=%d trades/d=%d spacing=%.0fs size=%.4f",
			s.Risk.DailyLossLimitPct, s.Risk.MaxTotalExposurePct, s.Risk.MaxSymbolExposurePct,
			s.Risk.MaxTradesPerHour, s.Risk.MaxTradesPerDay, s.Risk.MinTradeSpacingSec, s.Risk.PositionSizePct),
		fmt.Sprintf("[输出] %s", formatList(s.Outputs)),
		strings.Repeat("=", 60),
	}
	return out
}

func (s *StartupSummary) Print() {
	if s == nil {
		return
	}
	logger.InfoBlock(strings.Join(s.Lines(), "\n"))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
