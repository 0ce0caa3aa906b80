package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroker = errors.New("broker unavailable")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures uint32) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         maxFailures,
		OpenTimeout:         time.Minute,
		MaxRequestsHalfOpen: 1,
	})
	cb.now = clock.now
	cb.changedAt = clock.t
	return cb, clock
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Call(func() error { return errBroker })
	}
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()

	assert.Equal(t, uint32(5), config.MaxFailures)
	assert.Equal(t, 30*time.Second, config.OpenTimeout)
	assert.Equal(t, uint32(1), config.MaxRequestsHalfOpen)
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3)

	failN(cb, 2)
	require.NoError(t, cb.Call(func() error { return nil }))
	failN(cb, 2)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(2), cb.Failures())
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)

	failN(cb, 3)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb, clock := newTestBreaker(2)
		failN(cb, 2)

		clock.t = clock.t.Add(time.Minute)
		require.NoError(t, cb.Call(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb, clock := newTestBreaker(2)
		failN(cb, 2)

		clock.t = clock.t.Add(time.Minute)
		assert.ErrorIs(t, cb.Call(func() error { return errBroker }), errBroker)
		assert.Equal(t, StateOpen, cb.State())

		assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
	})

	t.Run("single probe at a time", func(t *testing.T) {
		cb, clock := newTestBreaker(1)
		failN(cb, 1)
		clock.t = clock.t.Add(time.Minute)

		err := cb.Call(func() error {
			assert.Equal(t, StateHalfOpen, cb.State())
			return cb.Call(func() error { return nil })
		})
		assert.ErrorIs(t, err, ErrTooManyRequests)
	})
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, clock := newTestBreaker(1)
	var transitions []string
	cb.OnStateChange = func(from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	failN(cb, 1)
	clock.t = clock.t.Add(time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
