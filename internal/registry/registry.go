// Package registry owns the mapping from logical service names to their
// configuration, instance sets, and per-service resilience state. It is the
// leaf dependency for the request router and the health checker.
package registry

import (
	"fmt"
	"sync"

	"github.com/rideflow/gateway/internal/domain"
	gwerrors "github.com/rideflow/gateway/internal/errors"
	"github.com/rideflow/gateway/internal/service"
	"github.com/rideflow/gateway/pkg/logger"
)

// serviceEntry bundles everything the gateway tracks for one logical service.
// The breaker and selector live for the process lifetime alongside the config.
type serviceEntry struct {
	config    domain.ServiceConfig
	instances []*domain.Instance
	breaker   domain.CircuitBreaker
	selector  domain.InstanceSelector

	mu sync.RWMutex
}

// Registry is the concurrency-safe service table. Structural mutation
// (Register, AddInstance, RemoveInstance) is safe under concurrent routing
// activity; readers see mutations without a restart.
type Registry struct {
	services map[string]*serviceEntry
	logger   *logger.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty service registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		services: make(map[string]*serviceEntry),
		logger:   log.RegistryLogger(),
	}
}

// Register adds a logical service with its configuration. Every configured
// instance starts out presumed healthy. It fails with a ConfigurationError
// when the service name is already registered or no instance is configured.
func (r *Registry) Register(config domain.ServiceConfig) error {
	if config.ServiceName == "" {
		return gwerrors.NewConfigurationError("service name cannot be empty")
	}
	if len(config.Instances) == 0 {
		return gwerrors.NewConfigurationError(
			fmt.Sprintf("service '%s' must have at least one instance", config.ServiceName))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[config.ServiceName]; exists {
		return gwerrors.NewConfigurationError(
			fmt.Sprintf("service '%s' is already registered", config.ServiceName))
	}

	instances := make([]*domain.Instance, 0, len(config.Instances))
	seen := make(map[string]bool)
	for _, ic := range config.Instances {
		if seen[ic.Address] {
			return gwerrors.NewConfigurationError(
				fmt.Sprintf("service '%s' has duplicate instance address '%s'", config.ServiceName, ic.Address))
		}
		seen[ic.Address] = true
		instances = append(instances, domain.NewInstance(ic.Address, ic.Weight))
	}

	r.services[config.ServiceName] = &serviceEntry{
		config:    config,
		instances: instances,
		breaker:   service.NewCircuitBreaker(config.ServiceName, config.BreakerThreshold, config.RecoveryTimeout, r.logger),
		selector:  service.NewRoundRobinSelector(),
	}

	r.logger.WithFields(map[string]interface{}{
		"service":   config.ServiceName,
		"instances": len(instances),
	}).Info("Registered service")

	return nil
}

// GetConfig returns the configuration of a registered service
func (r *Registry) GetConfig(serviceName string) (domain.ServiceConfig, error) {
	entry, err := r.entry(serviceName)
	if err != nil {
		return domain.ServiceConfig{}, err
	}
	return entry.config, nil
}

// Services returns the names of all registered services
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// Instances returns a snapshot of the service's current instance set.
// The slice is a copy; the Instance pointers are shared so health flips
// from the health checker and the router stay visible.
func (r *Registry) Instances(serviceName string) ([]*domain.Instance, error) {
	entry, err := r.entry(serviceName)
	if err != nil {
		return nil, err
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	snapshot := make([]*domain.Instance, len(entry.instances))
	copy(snapshot, entry.instances)
	return snapshot, nil
}

// Breaker returns the circuit breaker of a registered service
func (r *Registry) Breaker(serviceName string) (domain.CircuitBreaker, error) {
	entry, err := r.entry(serviceName)
	if err != nil {
		return nil, err
	}
	return entry.breaker, nil
}

// Selector returns the instance selector of a registered service
func (r *Registry) Selector(serviceName string) (domain.InstanceSelector, error) {
	entry, err := r.entry(serviceName)
	if err != nil {
		return nil, err
	}
	return entry.selector, nil
}

// AddInstance appends a new healthy-by-default instance to a service.
// It is a no-op when the address is already present.
func (r *Registry) AddInstance(serviceName, address string, weight int) error {
	entry, err := r.entry(serviceName)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for _, inst := range entry.instances {
		if inst.Address == address {
			return nil
		}
	}

	entry.instances = append(entry.instances, domain.NewInstance(address, weight))
	r.logger.WithFields(map[string]interface{}{
		"service":  serviceName,
		"instance": address,
	}).Info("Added instance")

	return nil
}

// RemoveInstance removes an instance from a service. In-flight requests to
// the instance complete normally; subsequent selections never return it.
func (r *Registry) RemoveInstance(serviceName, address string) error {
	entry, err := r.entry(serviceName)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for i, inst := range entry.instances {
		if inst.Address == address {
			entry.instances = append(entry.instances[:i], entry.instances[i+1:]...)
			r.logger.WithFields(map[string]interface{}{
				"service":  serviceName,
				"instance": address,
			}).Info("Removed instance")
			return nil
		}
	}

	return gwerrors.NewError(gwerrors.ErrCodeInstanceNotFound,
		fmt.Sprintf("instance '%s' not found in service '%s'", address, serviceName))
}

// ResetBreaker administratively forces a service's breaker back to closed
func (r *Registry) ResetBreaker(serviceName string) error {
	entry, err := r.entry(serviceName)
	if err != nil {
		return err
	}
	entry.breaker.Reset()
	return nil
}

// Status returns the observability snapshot of every registered service
func (r *Registry) Status() []domain.ServiceStatus {
	r.mu.RLock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.mu.RUnlock()

	statuses := make([]domain.ServiceStatus, 0, len(names))
	for _, name := range names {
		entry, err := r.entry(name)
		if err != nil {
			continue
		}

		entry.mu.RLock()
		instances := make([]domain.InstanceStatus, len(entry.instances))
		for i, inst := range entry.instances {
			instances[i] = domain.InstanceStatus{
				Address: inst.Address,
				Healthy: inst.IsHealthy(),
			}
		}
		entry.mu.RUnlock()

		statuses = append(statuses, domain.ServiceStatus{
			ServiceName:  name,
			Instances:    instances,
			BreakerState: entry.breaker.State().String(),
			FailureCount: entry.breaker.FailureCount(),
		})
	}
	return statuses
}

// entry looks up a service entry, failing with a NotFound error
func (r *Registry) entry(serviceName string) (*serviceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.services[serviceName]
	if !exists {
		return nil, gwerrors.NewServiceNotFoundError(serviceName)
	}
	return entry, nil
}
