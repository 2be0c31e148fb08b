package mt5

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	assert.True(t, b.CanExecute())
	assert.Equal(t, BreakerClosed, b.State())

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.CanExecute(), "below threshold must stay closed")

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.CanExecute())
}

func TestBreakerHalfOpenAfterCoolDown(t *testing.T) {
	b := NewCircuitBreaker(1, 30*time.Millisecond)

	b.RecordFailure()
	assert.False(t, b.CanExecute())

	time.Sleep(40 * time.Millisecond)

	assert.True(t, b.CanExecute(), "cooldown elapsed, probe must pass")
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreakerClosesOnProbeSuccess(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.CanExecute())

	b.RecordSuccess()

	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.True(t, b.CanExecute())
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.CanExecute())
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.RecordFailure()

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.CanExecute())
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// После сброса до открытия снова нужно три подряд
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
}
