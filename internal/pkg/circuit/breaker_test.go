package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errNetwork  = errors.New("timeout")
	errBusiness = errors.New("rejected")
)

func onlyNetwork(err error) bool { return errors.Is(err, errNetwork) }

func fail() error    { return errNetwork }
func succeed() error { return nil }

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var seen []Transition
	b := New(Config{
		Name:         "orders",
		Threshold:    2,
		Cooldown:     30 * time.Second,
		Countable:    onlyNetwork,
		OnTransition: func(tr Transition) { seen = append(seen, tr) },
	})
	b.SetClock(func() time.Time { return now })

	assert.ErrorIs(t, b.Do(fail), errNetwork)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(fail), errNetwork)
	assert.Equal(t, StateOpen, b.State())

	called := false
	assert.ErrorIs(t, b.Do(func() error { called = true; return nil }), ErrOpen)
	assert.False(t, called)

	now = now.Add(31 * time.Second)
	require.NoError(t, b.Do(succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())

	require.Len(t, seen, 3)
	assert.Equal(t, Transition{Name: "orders", From: StateClosed, To: StateOpen, Failures: 2}, seen[0])
	assert.Equal(t, StateHalfOpen, seen[1].To)
	assert.Equal(t, StateClosed, seen[2].To)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := New(Config{Threshold: 1, Cooldown: time.Second})
	b.SetClock(func() time.Time { return now })

	_ = b.Do(fail)
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, b.Do(fail), errNetwork)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Do(succeed), ErrOpen)
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	b := New(Config{Threshold: 1, Cooldown: time.Hour, Countable: onlyNetwork})
	assert.ErrorIs(t, b.Do(func() error { return errBusiness }), errBusiness)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestZeroThresholdNeverOpens(t *testing.T) {
	b := New(Config{Cooldown: time.Second})
	for i := 0; i < 10; i++ {
		_ = b.Do(fail)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 10, b.Failures())
	assert.Equal(t, "closed", b.State().String())
}
