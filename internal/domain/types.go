package domain

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Instance represents one physical endpoint of a logical backend service.
// Identity is the address, unique within a service.
type Instance struct {
	Address string `json:"address" yaml:"address"`
	Weight  int    `json:"weight" yaml:"weight"`

	// Runtime state - thread-safe using atomic operations.
	// healthy has two independent writers: the health checker (periodic)
	// and the request router (immediate, on transport failure).
	healthy             int32
	consecutiveFailures int64
	lastHealthCheck     atomic.Value // time.Time
}

// NewInstance creates a new Instance, healthy by default
func NewInstance(address string, weight int) *Instance {
	inst := &Instance{
		Address: address,
		Weight:  weight,
		healthy: 1,
	}
	inst.lastHealthCheck.Store(time.Time{})
	return inst
}

// IsHealthy returns true if the instance is currently marked healthy
func (i *Instance) IsHealthy() bool {
	return atomic.LoadInt32(&i.healthy) == 1
}

// MarkHealthy marks the instance healthy and clears its failure streak
func (i *Instance) MarkHealthy() {
	atomic.StoreInt32(&i.healthy, 1)
	atomic.StoreInt64(&i.consecutiveFailures, 0)
}

// MarkUnhealthy marks the instance unhealthy
func (i *Instance) MarkUnhealthy() {
	atomic.StoreInt32(&i.healthy, 0)
}

// IncrementFailures atomically increments the consecutive failure count
func (i *Instance) IncrementFailures() int64 {
	return atomic.AddInt64(&i.consecutiveFailures, 1)
}

// ConsecutiveFailures returns the current consecutive failure count
func (i *Instance) ConsecutiveFailures() int64 {
	return atomic.LoadInt64(&i.consecutiveFailures)
}

// UpdateLastHealthCheck records the timestamp of the last health probe
func (i *Instance) UpdateLastHealthCheck() {
	i.lastHealthCheck.Store(time.Now())
}

// LastHealthCheck returns the timestamp of the last health probe
func (i *Instance) LastHealthCheck() time.Time {
	t, _ := i.lastHealthCheck.Load().(time.Time)
	return t
}

// ServiceConfig holds the static configuration of a logical backend service
type ServiceConfig struct {
	ServiceName      string           `json:"service_name" yaml:"service_name"`
	Instances        []InstanceConfig `json:"instances" yaml:"instances"`
	HealthCheckPath  string           `json:"health_check_path" yaml:"health_check_path"`
	RequestTimeout   time.Duration    `json:"request_timeout" yaml:"request_timeout"`
	MaxRetries       int              `json:"max_retries" yaml:"max_retries"`
	BreakerThreshold int              `json:"breaker_threshold" yaml:"breaker_threshold"`
	RecoveryTimeout  time.Duration    `json:"recovery_timeout" yaml:"recovery_timeout"`
}

// InstanceConfig is the static configuration of a single instance
type InstanceConfig struct {
	Address string `json:"address" yaml:"address"`
	Weight  int    `json:"weight" yaml:"weight"`
}

// OutcomeKind classifies the result of a single transport attempt
type OutcomeKind int

const (
	// OutcomeSuccess means a response was received before the timeout,
	// including upstream 4xx/5xx application-level responses
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTransportFailure means connection refusal or a DNS/transport error
	OutcomeTransportFailure
	// OutcomeTimeout means the call exceeded the configured request timeout
	OutcomeTimeout
	// OutcomeCanceled means the caller abandoned the request before a
	// response arrived. It reflects nothing about the backend and must not
	// feed breaker or health state.
	OutcomeCanceled
)

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ResponseMeta carries upstream response metadata back to the caller
type ResponseMeta struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Outcome is the classified result of a single forwarding attempt.
// It is never a raw error type; transport errors are folded into Kind.
type Outcome struct {
	Kind     OutcomeKind
	Response *ResponseMeta
	Err      error
}

// CircuitBreakerState enumerates the per-service breaker states
type CircuitBreakerState int

const (
	// BreakerClosed - requests pass through, failures are counted
	BreakerClosed CircuitBreakerState = iota
	// BreakerOpen - requests are rejected until the recovery timeout elapses
	BreakerOpen
	// BreakerHalfOpen - a single trial request probes backend recovery
	BreakerHalfOpen
)

// String returns the string representation of CircuitBreakerState
func (s CircuitBreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker gates whether a request may attempt a service's backend,
// based on recent failure history. All transitions are atomic with respect
// to concurrent calls for the same service.
type CircuitBreaker interface {
	AllowRequest() bool
	RecordSuccess()
	RecordFailure()
	State() CircuitBreakerState
	FailureCount() int
	Reset()
}

// Transport performs the actual network call against a resolved instance
// address, bounded by the given context. It returns a classified outcome
// and never a raw transport error.
type Transport interface {
	RoundTrip(ctx context.Context, address string, req *http.Request) Outcome
}

// InstanceSelector picks the next instance to try from a service's current
// instance set. Implementations must never return an unhealthy instance and
// return nil when no healthy instance exists.
type InstanceSelector interface {
	SelectInstance(instances []*Instance) *Instance
	Name() string
}

// InstanceStatus is the observability snapshot of a single instance
type InstanceStatus struct {
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
}

// ServiceStatus is the observability snapshot of a logical service
type ServiceStatus struct {
	ServiceName  string           `json:"service_name"`
	Instances    []InstanceStatus `json:"instances"`
	BreakerState string           `json:"breaker_state"`
	FailureCount int              `json:"failure_count"`
}
