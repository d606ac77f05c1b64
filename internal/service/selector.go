package service

import (
	"sync"

	"github.com/rideflow/gateway/internal/domain"
)

// RoundRobinSelector implements domain.InstanceSelector with strict,
// unweighted round-robin over the currently healthy instances. The cursor
// advances by one on every selection and is reduced modulo the current
// healthy-set size, so health-set changes between calls never index out of
// range. Selection is serialized per service.
type RoundRobinSelector struct {
	cursor uint64
	mu     sync.Mutex
}

// NewRoundRobinSelector creates a new round-robin selector
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

// SelectInstance picks the next healthy instance, or nil when none exists
func (s *RoundRobinSelector) SelectInstance(instances []*domain.Instance) *domain.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	healthy := make([]*domain.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.IsHealthy() {
			healthy = append(healthy, inst)
		}
	}

	if len(healthy) == 0 {
		return nil
	}

	selected := healthy[s.cursor%uint64(len(healthy))]
	s.cursor++
	return selected
}

// Name returns the strategy name
func (s *RoundRobinSelector) Name() string {
	return "round_robin"
}

// WeightedRoundRobinSelector implements smooth weighted round-robin over the
// healthy instances. It is a documented extension of the default unweighted
// strategy; instance weights are ignored by RoundRobinSelector.
type WeightedRoundRobinSelector struct {
	currentWeights map[string]int
	mu             sync.Mutex
}

// NewWeightedRoundRobinSelector creates a new weighted round-robin selector
func NewWeightedRoundRobinSelector() *WeightedRoundRobinSelector {
	return &WeightedRoundRobinSelector{
		currentWeights: make(map[string]int),
	}
}

// SelectInstance picks the healthy instance with the highest accumulated
// weight, or nil when none exists
func (s *WeightedRoundRobinSelector) SelectInstance(instances []*domain.Instance) *domain.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	healthy := make([]*domain.Instance, 0, len(instances))
	totalWeight := 0
	for _, inst := range instances {
		if inst.IsHealthy() {
			healthy = append(healthy, inst)
			totalWeight += inst.Weight
		}
	}

	if len(healthy) == 0 {
		return nil
	}
	if totalWeight == 0 {
		return healthy[0]
	}

	var selected *domain.Instance
	maxWeight := 0
	for _, inst := range healthy {
		s.currentWeights[inst.Address] += inst.Weight
		if selected == nil || s.currentWeights[inst.Address] > maxWeight {
			maxWeight = s.currentWeights[inst.Address]
			selected = inst
		}
	}

	s.currentWeights[selected.Address] -= totalWeight
	return selected
}

// Name returns the strategy name
func (s *WeightedRoundRobinSelector) Name() string {
	return "weighted_round_robin"
}

// Forget drops accumulated weight state for a removed instance
func (s *WeightedRoundRobinSelector) Forget(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.currentWeights, address)
}
