// Package metrics 为下单流水线提供 Prometheus 指标。每个 Sink 持有独立的
// registry，不注册全局 collector。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"spotpilot/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExecutionBuckets 是 order_execution_seconds 的固定分桶。
var ExecutionBuckets = []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}

// Recorder 是校验链与执行器写入指标的窄接口。
type Recorder interface {
	ObserveOrder(symbol string, side types.Side, status types.Status)
	IncRejection(reason types.Reason)
	IncException(typ string)
	ObserveExecution(d time.Duration)
	SetExposure(symbol string, quote float64)
	SetHalted(halted bool)
}

// Sink 并发安全。
type Sink struct {
	registry *prometheus.Registry

	ordersTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	exceptionsTotal *prometheus.CounterVec
	execSeconds     prometheus.Histogram

	exposure     *prometheus.GaugeVec
	haltLatched  prometheus.Gauge
	cycles       prometheus.Counter
	httpRequests *prometheus.CounterVec
}

func New() *Sink {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Sink{
		registry: reg,
		// 每次完成的下单尝试计数一次。
		ordersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Completed order attempts by symbol, side and status",
		}, []string{"symbol", "side", "status"}),
		rejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "order_rejections_total",
			Help: "Validator and precheck rejections by reason code",
		}, []string{"reason"}),
		exceptionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exceptions_total",
			Help: "Classified non-ok outcomes by exception type",
		}, []string{"type"}),
		execSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_seconds",
			Help:    "Wall time between submission start and completion",
			Buckets: ExecutionBuckets,
		}),
		exposure: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exposure_quote",
			Help: "Open notional per symbol in quote currency",
		}, []string{"symbol"}),
		haltLatched: f.NewGauge(prometheus.GaugeOpts{
			Name: "daily_loss_halt",
			Help: "1 while the daily loss halt is latched",
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "trade_cycles_total",
			Help: "Completed trade cycle iterations",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served by the status server",
		}, []string{"method", "path", "status"}),
	}
}

func (s *Sink) ObserveOrder(symbol string, side types.Side, status types.Status) {
	s.ordersTotal.WithLabelValues(symbol, string(side), string(status)).Inc()
}

func (s *Sink) IncRejection(reason types.Reason) {
	s.rejectionsTotal.WithLabelValues(string(reason)).Inc()
}

func (s *Sink) IncException(typ string) {
	if typ == "" {
		return
	}
	s.exceptionsTotal.WithLabelValues(typ).Inc()
}

func (s *Sink) ObserveExecution(d time.Duration) {
	s.execSeconds.Observe(d.Seconds())
}

func (s *Sink) SetExposure(symbol string, quote float64) {
	s.exposure.WithLabelValues(symbol).Set(quote)
}

func (s *Sink) SetHalted(halted bool) {
	if halted {
		s.haltLatched.Set(1)
		return
	}
	s.haltLatched.Set(0)
}

func (s *Sink) IncCycle() {
	s.cycles.Inc()
}

func (s *Sink) ObserveHTTP(method, path string, status int) {
	s.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Registry 暴露底层 registry（测试用 testutil 读取）。
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler 返回该 registry 的文本暴露格式 handler。
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Nop 丢弃全部指标。
type Nop struct{}

func (Nop) ObserveOrder(string, types.Side, types.Status) {}
func (Nop) IncRejection(types.Reason)                     {}
func (Nop) IncException(string)                           {}
func (Nop) ObserveExecution(time.Duration)                {}
func (Nop) SetExposure(string, float64)                   {}
func (Nop) SetHalted(bool)                                {}
