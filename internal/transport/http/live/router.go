package livehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spotpilot/internal/account"
	"spotpilot/internal/logger"
	"spotpilot/internal/registry"
	"spotpilot/internal/store"

	"github.com/gin-gonic/gin"
)

// StatusSource 提供心跳统计与持仓。
type StatusSource interface {
	Stats() account.Stats
	Positions(marks map[string]float64) []account.Position
}

// RegistrySource 提供冷却与敞口状态。
type RegistrySource interface {
	Snapshot(now time.Time) []registry.CooldownState
	State(symbol string, now time.Time) (registry.CooldownState, error)
	TotalExposure() float64
	Halted(now time.Time) bool
}

// JournalSource 提供交易日志查询。
type JournalSource interface {
	Recent(ctx context.Context, symbol string, limit int) ([]store.TradeRecord, error)
	Summaries(ctx context.Context, limit int) ([]store.DailySummary, error)
}

// Router 暴露只读的运行状态接口。
type Router struct {
	status   StatusSource
	registry RegistrySource
	journal  JournalSource
	marks    func() map[string]float64
	symbols  func() []string
	now      func() time.Time
}

func NewRouter(cfg ServerConfig) *Router {
	return &Router{
		status:   cfg.Status,
		registry: cfg.Registry,
		journal:  cfg.Journal,
		symbols:  cfg.Symbols,
		marks:    cfg.Marks,
		now:      time.Now,
	}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/registry", r.handleRegistry)
	group.GET("/registry/:symbol", r.handleRegistrySymbol)
	group.GET("/trades", r.handleTrades)
	group.GET("/summaries", r.handleSummaries)
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status not available"})
		return
	}
	st := r.status.Stats()
	var marks map[string]float64
	if r.marks != nil {
		marks = r.marks()
	}
	body := gin.H{
		"uptime_sec":      int64(st.Uptime.Seconds()),
		"balance":         st.Balance,
		"equity":          st.Equity,
		"pnl_pct":         st.PnLPct,
		"realized_pnl":    st.RealizedPnL,
		"trades":          st.Trades,
		"wins":            st.Wins,
		"max_drawdown":    st.MaxDrawdown,
		"avg_duration_ms": st.AvgDuration.Milliseconds(),
		"error_rate":      st.ErrorRate,
		"attempts":        st.Attempts,
		"positions":       r.status.Positions(marks),
	}
	if r.registry != nil {
		body["halted"] = r.registry.Halted(r.now())
		body["total_exposure"] = r.registry.TotalExposure()
	}
	if r.symbols != nil {
		body["symbols"] = r.symbols()
	}
	c.JSON(http.StatusOK, body)
}

func (r *Router) handleRegistry(c *gin.Context) {
	if r.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry not available"})
		return
	}
	now := r.now()
	c.JSON(http.StatusOK, gin.H{
		"symbols":        r.registry.Snapshot(now),
		"total_exposure": r.registry.TotalExposure(),
		"halted":         r.registry.Halted(now),
	})
}

func (r *Router) handleRegistrySymbol(c *gin.Context) {
	if r.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry not available"})
		return
	}
	sym := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	st, err := r.registry.State(sym, r.now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rows, err := r.journal.Recent(ctx, c.Query("symbol"), limit)
	if err != nil {
		logger.Errorf("[api] trades query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "count": len(rows)})
}

func (r *Router) handleSummaries(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rows, err := r.journal.Summaries(ctx, limit)
	if err != nil {
		logger.Errorf("[api] summaries query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": rows})
}
