package service

import (
	"sync"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	"github.com/rideflow/gateway/pkg/logger"
)

// CircuitBreaker implements domain.CircuitBreaker for one logical service.
// The half-open state itself marks the single admitted trial; concurrent
// extra attempts are rejected, not queued.
type CircuitBreaker struct {
	serviceName      string
	failureThreshold int
	recoveryTimeout  time.Duration
	logger           *logger.Logger

	state        domain.CircuitBreakerState
	failureCount int
	openedAt     time.Time

	mu sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker for a logical service
func NewCircuitBreaker(serviceName string, failureThreshold int, recoveryTimeout time.Duration, log *logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		serviceName:      serviceName,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		logger:           log.BreakerLogger(serviceName),
		state:            domain.BreakerClosed,
	}
}

// AllowRequest reports whether a request may attempt the backend.
// While open, only the first call after the recovery timeout elapses is
// admitted; it transitions the breaker to half-open as the trial call.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case domain.BreakerClosed:
		return true

	case domain.BreakerOpen:
		if time.Since(cb.openedAt) < cb.recoveryTimeout {
			return false
		}
		cb.state = domain.BreakerHalfOpen
		cb.logger.Info("Circuit breaker transitioning to half-open, admitting trial request")
		return true

	case domain.BreakerHalfOpen:
		// Trial already in flight; reject, never queue.
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful attempt
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case domain.BreakerClosed:
		cb.failureCount = 0

	case domain.BreakerHalfOpen:
		cb.state = domain.BreakerClosed
		cb.failureCount = 0
		cb.logger.Info("Circuit breaker closing after successful trial")
	}
}

// RecordFailure records a failed attempt
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case domain.BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = domain.BreakerOpen
			cb.openedAt = time.Now()
			cb.logger.WithFields(map[string]interface{}{
				"failure_count":     cb.failureCount,
				"failure_threshold": cb.failureThreshold,
			}).Warn("Circuit breaker opening due to consecutive failures")
		}

	case domain.BreakerHalfOpen:
		// Trial failed; reopen and restart the recovery timer.
		cb.state = domain.BreakerOpen
		cb.openedAt = time.Now()
		cb.logger.Info("Circuit breaker reopening after failed trial")
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() domain.CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive failure count
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset forces the breaker back to closed, clearing all failure history
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = domain.BreakerClosed
	cb.failureCount = 0
	cb.openedAt = time.Time{}

	cb.logger.Info("Circuit breaker reset to closed state")
}
