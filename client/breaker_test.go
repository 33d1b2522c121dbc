package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-request-cache/logger"
	"github.com/saiset-co/sai-request-cache/types"
)

func newTestBreaker(threshold, halfOpen int, recovery time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenRequests: halfOpen,
	}, logger.NewNopLogger(), "test")
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb := NewCircuitBreaker(nil, logger.NewNopLogger(), "test")
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateBreakerDisabled, cb.State())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 1, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, StateBreakerOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, 1, time.Minute)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateBreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(1, 2, time.Minute)

	cb.RecordFailure()
	assert.False(t, cb.CanExecute())

	*now = now.Add(time.Minute)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateBreakerHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateBreakerHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateBreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenLimitsTrials(t *testing.T) {
	cb, now := newTestBreaker(1, 2, time.Minute)

	cb.RecordFailure()
	*now = now.Add(time.Minute)

	assert.True(t, cb.CanExecute())
	assert.True(t, cb.CanExecute())
	assert.False(t, cb.CanExecute(), "third concurrent trial rejected")

	cb.Release()
	assert.True(t, cb.CanExecute(), "released slot reusable")
	assert.False(t, cb.CanExecute())

	cb.RecordSuccess()
	assert.Equal(t, StateBreakerHalfOpen, cb.State())
	assert.True(t, cb.CanExecute())

	cb.RecordSuccess()
	assert.Equal(t, StateBreakerClosed, cb.State())
	assert.True(t, cb.CanExecute())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, 1, time.Minute)

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, StateBreakerOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, 1, time.Hour)

	cb.RecordFailure()
	cb.Reset()
	assert.Equal(t, StateBreakerClosed, cb.State())
	assert.True(t, cb.CanExecute())
}

func TestClassification(t *testing.T) {
	assert.True(t, IsSuccessfulResponse(200, nil))
	assert.True(t, IsSuccessfulResponse(404, nil))
	assert.False(t, IsSuccessfulResponse(429, nil))
	assert.False(t, IsSuccessfulResponse(500, nil))

	assert.True(t, IsCircuitBreakerFailure(503, nil))
	assert.False(t, IsCircuitBreakerFailure(500, nil))

	assert.True(t, IsRetryableError(504, nil))
	assert.False(t, IsRetryableError(400, nil))
	assert.False(t, IsRetryableError(0, types.ErrClientNotRunning))
}
