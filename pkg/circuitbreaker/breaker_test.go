package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(enabled bool) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("rpc-0", enabled, 3, 5*time.Second, 15*time.Second, &logger.EmptyLogger{})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb, clock := newTestBreaker(true)

	assert.False(t, cb.RecordFailure())
	clock.advance(time.Second)
	assert.False(t, cb.RecordFailure())
	clock.advance(time.Second)
	assert.True(t, cb.RecordFailure(), "third failure in window should trip")
	assert.True(t, cb.IsOpen())

	// still tripped within the reset timeout
	clock.advance(10 * time.Second)
	assert.True(t, cb.IsOpen())

	// half-open after the reset timeout
	clock.advance(6 * time.Second)
	assert.False(t, cb.IsOpen())
	assert.Equal(t, 0, cb.GetState().FailureCount)
}

func TestCircuitBreakerWindowExpiry(t *testing.T) {
	cb, clock := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.advance(6 * time.Second)

	assert.False(t, cb.RecordFailure(), "failures outside the window should not accumulate")
	assert.Equal(t, 1, cb.GetState().FailureCount)
}

func TestCircuitBreakerSuccessClearsCount(t *testing.T) {
	cb, _ := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.False(t, cb.RecordFailure())
	assert.Equal(t, 1, cb.GetState().FailureCount)
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb, _ := newTestBreaker(false)

	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	cb.Reset()
	state := cb.GetState()
	assert.False(t, state.Open)
	assert.Equal(t, "rpc-0", state.Name)
	assert.Equal(t, 3, state.Threshold)
}
