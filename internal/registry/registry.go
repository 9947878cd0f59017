// Package registry 维护进程内共享的冷却、日内计数、敞口与日亏损熔断状态。
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"spotpilot/internal/types"
)

const secondsPerDay = 86400

var ErrUnknownSymbol = errors.New("registry: unknown symbol")

// Limits 是注册表执行的节流参数。
type Limits struct {
	MinSpacing       time.Duration
	MaxTradesPerDay  int
	MaxTradesPerHour int
	TZOffset         time.Duration
}

// CooldownState 是单个币种的冷却状态快照。
type CooldownState struct {
	Symbol      string    `json:"symbol"`
	LastTrade   time.Time `json:"last_trade"`
	DayBucket   int64     `json:"day_bucket"`
	TradesToday int       `json:"trades_today"`
	Exposure    float64   `json:"exposure_quote"`
	// CooldownRemaining 以秒为单位。
	CooldownRemaining float64 `json:"cooldown_remaining_sec"`
}

type symbolState struct {
	lastTS      time.Time
	dayBucket   int64
	tradesToday int
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	limits   Limits
	states   map[string]*symbolState
	exposure map[string]float64
	recent   []time.Time

	halted     bool
	haltBucket int64

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(limits Limits) *Registry {
	return &Registry{
		limits:   limits,
		states:   make(map[string]*symbolState),
		exposure: make(map[string]float64),
		locks:    make(map[string]*sync.Mutex),
	}
}

// DayBucket 返回 floor((now + tz_offset) / 86400)。
func (r *Registry) DayBucket(now time.Time) int64 {
	return DayBucket(now, r.limits.TZOffset)
}

func DayBucket(now time.Time, tz time.Duration) int64 {
	sec := now.Unix() + int64(tz/time.Second)
	b := sec / secondsPerDay
	if sec < 0 && sec%secondsPerDay != 0 {
		b--
	}
	return b
}

// Lock 串行化同一币种的 检查→提交→标记 流程，返回解锁函数。
func (r *Registry) Lock(symbol string) func() {
	r.lockMu.Lock()
	m, ok := r.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		r.locks[symbol] = m
	}
	r.lockMu.Unlock()
	m.Lock()
	return m.Unlock
}

// CanTrade 只读地检查冷却、日上限、小时上限，不修改状态。
func (r *Registry) CanTrade(symbol string, now time.Time) (bool, types.Reason) {
	return r.Check(symbol, now, false)
}

// Check 同 CanTrade；skipCooldown 仅跳过间隔检查，日/小时上限照常生效。
func (r *Registry) Check(symbol string, now time.Time, skipCooldown bool) (bool, types.Reason) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !skipCooldown && r.cooldownRemainingLocked(symbol, now) > 0 {
		return false, types.ReasonCooldown
	}
	if r.limits.MaxTradesPerDay > 0 && r.tradesTodayLocked(symbol, now) >= r.limits.MaxTradesPerDay {
		return false, types.ReasonDailyTradeLimit
	}
	if r.limits.MaxTradesPerHour > 0 && r.tradesLastHourLocked(now) >= r.limits.MaxTradesPerHour {
		return false, types.ReasonHourlyTradeLimit
	}
	return true, ""
}

// MarkTrade 记录一次成交：跨日时先清零计数再递增。
func (r *Registry) MarkTrade(symbol string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(symbol)
	bucket := r.DayBucket(now)
	if st.dayBucket != bucket {
		st.dayBucket = bucket
		st.tradesToday = 0
	}
	st.lastTS = now
	st.tradesToday++
	r.recent = append(r.recent, now)
	r.pruneLocked(now)
}

// Touch 惰性创建币种状态（首次被提及时）。
func (r *Registry) Touch(symbol string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(symbol)
	if st.lastTS.IsZero() && st.tradesToday == 0 {
		st.dayBucket = r.DayBucket(now)
	}
}

func (r *Registry) CooldownRemaining(symbol string, now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cooldownRemainingLocked(symbol, now)
}

// TradesToday 返回按当前日桶生效的计数，跨日视为 0。
func (r *Registry) TradesToday(symbol string, now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tradesTodayLocked(symbol, now)
}

// TradesLastHour 返回全局滑动一小时窗口内的成交次数。
func (r *Registry) TradesLastHour(now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tradesLastHourLocked(now)
}

// AddExposure 调整敞口，单币种下限为 0；返回调整后的值。
func (r *Registry) AddExposure(symbol string, delta float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.exposure[symbol] + delta
	if next <= 0 {
		delete(r.exposure, symbol)
		return 0
	}
	r.exposure[symbol] = next
	return next
}

func (r *Registry) Exposure(symbol string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exposure[symbol]
}

func (r *Registry) TotalExposure() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0.0
	for _, v := range r.exposure {
		total += v
	}
	return total
}

// LatchHalt 锁存日亏损熔断，直到日桶变化。
func (r *Registry) LatchHalt(now time.Time) {
	r.mu.Lock()
	r.halted = true
	r.haltBucket = r.DayBucket(now)
	r.mu.Unlock()
}

func (r *Registry) Halted(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.halted && r.haltBucket == r.DayBucket(now)
}

// State 返回单个币种的状态；从未出现过的币种返回 ErrUnknownSymbol。
func (r *Registry) State(symbol string, now time.Time) (CooldownState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.states[symbol]; !ok {
		if _, held := r.exposure[symbol]; !held {
			return CooldownState{}, ErrUnknownSymbol
		}
	}
	return r.snapshotLocked(symbol, now), nil
}

// Snapshot 返回全部币种状态，按币种排序。
func (r *Registry) Snapshot(now time.Time) []CooldownState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.states)+len(r.exposure))
	for sym := range r.states {
		seen[sym] = struct{}{}
	}
	for sym := range r.exposure {
		seen[sym] = struct{}{}
	}
	out := make([]CooldownState, 0, len(seen))
	for sym := range seen {
		out = append(out, r.snapshotLocked(sym, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Registry) snapshotLocked(symbol string, now time.Time) CooldownState {
	cs := CooldownState{
		Symbol:            symbol,
		DayBucket:         r.DayBucket(now),
		TradesToday:       r.tradesTodayLocked(symbol, now),
		Exposure:          r.exposure[symbol],
		CooldownRemaining: r.cooldownRemainingLocked(symbol, now).Seconds(),
	}
	if st, ok := r.states[symbol]; ok {
		cs.LastTrade = st.lastTS
	}
	return cs
}

func (r *Registry) stateLocked(symbol string) *symbolState {
	st, ok := r.states[symbol]
	if !ok {
		st = &symbolState{}
		r.states[symbol] = st
	}
	return st
}

func (r *Registry) cooldownRemainingLocked(symbol string, now time.Time) time.Duration {
	st, ok := r.states[symbol]
	if !ok || st.lastTS.IsZero() || r.limits.MinSpacing <= 0 {
		return 0
	}
	elapsed := now.Sub(st.lastTS)
	if elapsed >= r.limits.MinSpacing {
		return 0
	}
	return r.limits.MinSpacing - elapsed
}

func (r *Registry) tradesTodayLocked(symbol string, now time.Time) int {
	st, ok := r.states[symbol]
	if !ok || st.dayBucket != r.DayBucket(now) {
		return 0
	}
	return st.tradesToday
}

func (r *Registry) tradesLastHourLocked(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	n := 0
	for _, ts := range r.recent {
		if ts.After(cutoff) && !ts.After(now) {
			n++
		}
	}
	return n
}

func (r *Registry) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	idx := 0
	for idx < len(r.recent) && !r.recent[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		r.recent = append(r.recent[:0], r.recent[idx:]...)
	}
}
