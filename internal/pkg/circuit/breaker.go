// Package circuit 实现连续失败熔断：达到阈值后打开，冷却期过后放行一次探测。
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen 表示熔断器处于打开状态，请求被快速拒绝。
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Transition 是一次状态切换的快照。
type Transition struct {
	Name     string
	From, To State
	Failures int
}

type Config struct {
	Name string
	// Threshold<=0 时熔断器永不打开。
	Threshold int
	Cooldown  time.Duration
	// Countable 判断哪些错误计入失败；nil 表示全部计入。
	Countable func(error) bool
	// OnTransition 在持锁状态外同步调用。
	OnTransition func(Transition)
}

type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// SetClock 替换时间源，测试用。
func (b *Breaker) SetClock(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures 返回当前连续失败次数。
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Do 在熔断器允许时执行 fn。冷却期内直接返回 ErrOpen，fn 不会被调用。
func (b *Breaker) Do(fn func() error) error {
	t, ok := b.admit()
	if !ok {
		return ErrOpen
	}
	b.notify(t)
	err := fn()
	b.notify(b.settle(err))
	return err
}

func (b *Breaker) admit() (*Transition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil, true
	}
	if b.now().Sub(b.openedAt) <= b.cfg.Cooldown {
		return nil, false
	}
	return b.move(StateHalfOpen), true
}

func (b *Breaker) settle(err error) *Transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || (b.cfg.Countable != nil && !b.cfg.Countable(err)) {
		b.failures = 0
		if b.state == StateHalfOpen {
			return b.move(StateClosed)
		}
		return nil
	}
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.openedAt = b.now()
		return b.move(StateOpen)
	case b.cfg.Threshold > 0 && b.failures >= b.cfg.Threshold:
		b.openedAt = b.now()
		return b.move(StateOpen)
	}
	return nil
}

func (b *Breaker) move(to State) *Transition {
	if b.state == to {
		return nil
	}
	t := &Transition{Name: b.cfg.Name, From: b.state, To: to, Failures: b.failures}
	b.state = to
	return t
}

func (b *Breaker) notify(t *Transition) {
	if t != nil && b.cfg.OnTransition != nil {
		b.cfg.OnTransition(*t)
	}
}
