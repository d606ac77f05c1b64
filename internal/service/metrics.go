package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates per-service and per-instance routing counters for the
// status surface. It is not a metrics platform; the snapshot is the whole API.
type Metrics struct {
	totalRequests int64
	totalErrors   int64

	serviceMetrics map[string]*ServiceMetrics
	mu             sync.RWMutex
}

// ServiceMetrics holds counters for one logical service
type ServiceMetrics struct {
	Requests       int64            `json:"requests"`
	Errors         int64            `json:"errors"`
	Rejections     int64            `json:"rejections"`
	TotalLatencyMs int64            `json:"total_latency_ms"`
	MaxLatencyMs   int64            `json:"max_latency_ms"`
	LastRequest    time.Time        `json:"last_request"`
	Instances      map[string]int64 `json:"instance_requests"`
	InstanceErrors map[string]int64 `json:"instance_errors"`
}

// NewMetrics creates a new metrics aggregator
func NewMetrics() *Metrics {
	return &Metrics{
		serviceMetrics: make(map[string]*ServiceMetrics),
	}
}

func (m *Metrics) service(serviceName string) *ServiceMetrics {
	if sm, ok := m.serviceMetrics[serviceName]; ok {
		return sm
	}
	sm := &ServiceMetrics{
		Instances:      make(map[string]int64),
		InstanceErrors: make(map[string]int64),
	}
	m.serviceMetrics[serviceName] = sm
	return sm
}

// IncrementRequests counts one attempt against a service instance
func (m *Metrics) IncrementRequests(serviceName, address string) {
	atomic.AddInt64(&m.totalRequests, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	sm := m.service(serviceName)
	sm.Requests++
	sm.Instances[address]++
	sm.LastRequest = time.Now()
}

// IncrementErrors counts one failed attempt against a service instance
func (m *Metrics) IncrementErrors(serviceName, address string) {
	atomic.AddInt64(&m.totalErrors, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	sm := m.service(serviceName)
	sm.Errors++
	sm.InstanceErrors[address]++
}

// IncrementRejections counts a request refused before any backend contact
func (m *Metrics) IncrementRejections(serviceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.service(serviceName).Rejections++
}

// RecordLatency records the duration of one forwarding attempt
func (m *Metrics) RecordLatency(serviceName string, duration time.Duration) {
	latencyMs := duration.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	sm := m.service(serviceName)
	sm.TotalLatencyMs += latencyMs
	if latencyMs > sm.MaxLatencyMs {
		sm.MaxLatencyMs = latencyMs
	}
}

// TotalRequests returns the total attempt count across all services
func (m *Metrics) TotalRequests() int64 {
	return atomic.LoadInt64(&m.totalRequests)
}

// TotalErrors returns the total failed attempt count across all services
func (m *Metrics) TotalErrors() int64 {
	return atomic.LoadInt64(&m.totalErrors)
}

// Snapshot returns a copy of all per-service counters
func (m *Metrics) Snapshot() map[string]ServiceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]ServiceMetrics, len(m.serviceMetrics))
	for name, sm := range m.serviceMetrics {
		instances := make(map[string]int64, len(sm.Instances))
		for k, v := range sm.Instances {
			instances[k] = v
		}
		instanceErrors := make(map[string]int64, len(sm.InstanceErrors))
		for k, v := range sm.InstanceErrors {
			instanceErrors[k] = v
		}

		copied := *sm
		copied.Instances = instances
		copied.InstanceErrors = instanceErrors
		snapshot[name] = copied
	}
	return snapshot
}
