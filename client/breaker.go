package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-request-cache/types"
)

type CircuitBreakerState int32

const (
	StateBreakerClosed CircuitBreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
	StateBreakerDisabled
)

// CircuitBreaker fails calls fast after FailureThreshold consecutive
// failures. After RecoveryTimeout it admits at most HalfOpenRequests trial
// calls at a time and closes again after HalfOpenRequests successes. Every
// admitted call must end in RecordSuccess, RecordFailure or Release.
type CircuitBreaker struct {
	config      types.CircuitBreakerConfig
	logger      types.Logger
	serviceName string
	state       CircuitBreakerState
	failures    int
	successes   int
	trials      int
	lastFail    time.Time
	mutex       sync.Mutex
	now         func() time.Time
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, serviceName string) *CircuitBreaker {
	cb := &CircuitBreaker{
		logger:      logger,
		serviceName: serviceName,
		now:         time.Now,
	}

	if config == nil || !config.Enabled {
		cb.state = StateBreakerDisabled
		return cb
	}

	cb.config = *config
	if cb.config.FailureThreshold <= 0 {
		cb.config.FailureThreshold = 5
	}
	if cb.config.HalfOpenRequests <= 0 {
		cb.config.HalfOpenRequests = 1
	}
	cb.state = StateBreakerClosed

	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateBreakerOpen:
		if cb.now().Sub(cb.lastFail) >= cb.config.RecoveryTimeout {
			cb.transitionTo(StateBreakerHalfOpen)
			cb.trials = 1
			return true
		}
		return false
	case StateBreakerHalfOpen:
		if cb.trials >= cb.config.HalfOpenRequests {
			return false
		}
		cb.trials++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures = 0
	case StateBreakerHalfOpen:
		cb.releaseTrial()
		cb.successes++
		if cb.successes >= cb.config.HalfOpenRequests {
			cb.transitionTo(StateBreakerClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateBreakerClosed:
		cb.lastFail = cb.now()
		cb.failures++
		cb.logger.Debug("Failure recorded in closed state",
			zap.String("service", cb.serviceName),
			zap.Int("failures", cb.failures),
			zap.Int("threshold", cb.config.FailureThreshold))

		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(StateBreakerOpen)
		}
	case StateBreakerHalfOpen:
		cb.lastFail = cb.now()
		cb.transitionTo(StateBreakerOpen)
	}
}

// Release frees a half-open trial slot for a call whose outcome counts as
// neither success nor failure.
func (cb *CircuitBreaker) Release() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateBreakerHalfOpen {
		cb.releaseTrial()
	}
}

func (cb *CircuitBreaker) releaseTrial() {
	if cb.trials > 0 {
		cb.trials--
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	if cb == nil {
		return StateBreakerDisabled
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateBreakerDisabled {
		return
	}

	cb.transitionTo(StateBreakerClosed)
}

// transitionTo must be called with mutex held.
func (cb *CircuitBreaker) transitionTo(state CircuitBreakerState) {
	if cb.state == state {
		return
	}

	old := cb.state
	cb.state = state
	cb.successes = 0
	cb.trials = 0
	if state == StateBreakerClosed {
		cb.failures = 0
	}

	fields := []zap.Field{
		zap.String("service", cb.serviceName),
		zap.String("old_state", old.String()),
		zap.String("new_state", state.String()),
	}
	if state == StateBreakerOpen {
		cb.logger.Warn("Circuit breaker opened", fields...)
		return
	}
	cb.logger.Info("Circuit breaker state changed", fields...)
}

func (s CircuitBreakerState) String() string {
	switch s {
	case StateBreakerClosed:
		return "closed"
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	case StateBreakerDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
