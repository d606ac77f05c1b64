package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	"github.com/rideflow/gateway/internal/service"
	"github.com/rideflow/gateway/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	})
	require.NoError(t, err)
	return log
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 3, time.Second, newTestLogger(t))

	assert.Equal(t, domain.BreakerClosed, cb.State())
	assert.True(t, cb.AllowRequest(), "closed breaker should allow requests")

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, domain.BreakerClosed, cb.State(),
		"threshold-1 failures should leave the breaker closed")
	assert.True(t, cb.AllowRequest())

	cb.RecordFailure()
	assert.Equal(t, domain.BreakerOpen, cb.State(),
		"threshold failures should open the breaker")
	assert.False(t, cb.AllowRequest())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 3, time.Second, newTestLogger(t))

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, 2, cb.FailureCount())

	cb.RecordSuccess()
	assert.Equal(t, 0, cb.FailureCount())

	// The streak starts over; two more failures must not open the breaker.
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, domain.BreakerClosed, cb.State())
}

func TestCircuitBreakerRecoveryAdmitsSingleTrial(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 1, 50*time.Millisecond, newTestLogger(t))

	cb.RecordFailure()
	assert.Equal(t, domain.BreakerOpen, cb.State())
	assert.False(t, cb.AllowRequest(), "open breaker should reject before the recovery timeout")

	time.Sleep(80 * time.Millisecond)

	assert.True(t, cb.AllowRequest(), "first call after recovery timeout should be admitted as the trial")
	assert.Equal(t, domain.BreakerHalfOpen, cb.State())
	assert.False(t, cb.AllowRequest(), "second call while the trial is in flight should be rejected")
	assert.False(t, cb.AllowRequest())
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 1, 10*time.Millisecond, newTestLogger(t))

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.AllowRequest())
	require.Equal(t, domain.BreakerHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, domain.BreakerClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.True(t, cb.AllowRequest())
}

func TestCircuitBreakerHalfOpenFailureReopensAndRestartsTimer(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 1, 60*time.Millisecond, newTestLogger(t))

	cb.RecordFailure()
	time.Sleep(90 * time.Millisecond)
	require.True(t, cb.AllowRequest())

	cb.RecordFailure()
	assert.Equal(t, domain.BreakerOpen, cb.State())

	// The recovery timer restarted on the trial failure.
	assert.False(t, cb.AllowRequest())
	time.Sleep(90 * time.Millisecond)
	assert.True(t, cb.AllowRequest())
}

func TestCircuitBreakerConcurrentTrialAdmission(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 1, 20*time.Millisecond, newTestLogger(t))

	cb.RecordFailure()
	time.Sleep(50 * time.Millisecond)

	const goroutines = 32
	var wg sync.WaitGroup
	admitted := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- cb.AllowRequest()
		}()
	}
	wg.Wait()
	close(admitted)

	admittedCount := 0
	for ok := range admitted {
		if ok {
			admittedCount++
		}
	}

	assert.Equal(t, 1, admittedCount,
		"exactly one concurrent call should be admitted as the half-open trial")
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Parallel()

	cb := service.NewCircuitBreaker("ride-service", 2, time.Hour, newTestLogger(t))

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, domain.BreakerOpen, cb.State())
	require.False(t, cb.AllowRequest())

	cb.Reset()

	assert.Equal(t, domain.BreakerClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.True(t, cb.AllowRequest())
}
