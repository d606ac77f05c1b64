package service

import (
	"github.com/rideflow/gateway/internal/domain"
)

// ServiceCatalog is the view of the service registry consumed by the request
// router and the health checker. The registry package provides the canonical
// implementation.
type ServiceCatalog interface {
	// Services returns the names of all registered services
	Services() []string
	// GetConfig returns the configuration of a registered service
	GetConfig(serviceName string) (domain.ServiceConfig, error)
	// Instances returns a snapshot of the service's current instance set
	Instances(serviceName string) ([]*domain.Instance, error)
	// Breaker returns the circuit breaker of a registered service
	Breaker(serviceName string) (domain.CircuitBreaker, error)
	// Selector returns the instance selector of a registered service
	Selector(serviceName string) (domain.InstanceSelector, error)
}
