package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	"github.com/rideflow/gateway/pkg/logger"
)

// HealthCheckConfig holds the probe loop settings
type HealthCheckConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// HealthChecker periodically probes every configured instance of every
// registered service and updates its healthy flag. Probe failures are logged
// only; they never reach callers and never touch circuit breaker state.
type HealthChecker struct {
	config  HealthCheckConfig
	catalog ServiceCatalog
	client  *http.Client
	logger  *logger.Logger

	// Probes for the same instance must not overlap across ticks.
	inFlight map[*domain.Instance]bool
	flightMu sync.Mutex

	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

// NewHealthChecker creates a new health checker over the given catalog
func NewHealthChecker(config HealthCheckConfig, catalog ServiceCatalog, log *logger.Logger) *HealthChecker {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	return &HealthChecker{
		config:  config,
		catalog: catalog,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				MaxIdleConnsPerHost: 2,
			},
		},
		logger:   log.HealthCheckLogger(),
		inFlight: make(map[*domain.Instance]bool),
		stopChan: make(chan struct{}),
	}
}

// Start launches the background probe loop. It runs until Stop is called or
// the context is cancelled.
func (hc *HealthChecker) Start(ctx context.Context) error {
	if !hc.config.Enabled {
		hc.logger.Info("Health checking is disabled")
		return nil
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	if hc.isRunning {
		return fmt.Errorf("health checker is already running")
	}
	hc.isRunning = true

	hc.logger.Infof("Starting health checker with interval %v", hc.config.Interval)

	hc.wg.Add(1)
	go hc.run(ctx)

	return nil
}

// Stop halts the probe loop and waits for in-flight probes to finish
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if !hc.isRunning {
		return
	}

	hc.logger.Info("Stopping health checker")
	close(hc.stopChan)
	hc.wg.Wait()
	hc.isRunning = false
	hc.stopChan = make(chan struct{})

	hc.logger.Info("Health checker stopped")
}

// IsRunning returns true if the probe loop is active
func (hc *HealthChecker) IsRunning() bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.isRunning
}

// run executes one probe sweep per tick
func (hc *HealthChecker) run(ctx context.Context) {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.config.Interval)
	defer ticker.Stop()

	// Initial sweep so instance health reflects reality before the first tick.
	hc.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			hc.logger.Debug("Health check loop stopped due to context cancellation")
			return
		case <-hc.stopChan:
			hc.logger.Debug("Health check loop stopped")
			return
		case <-ticker.C:
			hc.sweep(ctx)
		}
	}
}

// sweep probes every instance of every registered service. Probes for
// different instances run concurrently; an instance whose previous probe is
// still in flight is skipped this tick.
func (hc *HealthChecker) sweep(ctx context.Context) {
	for _, serviceName := range hc.catalog.Services() {
		config, err := hc.catalog.GetConfig(serviceName)
		if err != nil {
			continue
		}
		instances, err := hc.catalog.Instances(serviceName)
		if err != nil {
			continue
		}

		for _, inst := range instances {
			if !hc.beginProbe(inst) {
				hc.logger.WithFields(map[string]interface{}{
					"service":  serviceName,
					"instance": inst.Address,
				}).Debug("Skipping probe, previous probe still in flight")
				continue
			}

			hc.wg.Add(1)
			go func(serviceName string, inst *domain.Instance, path string) {
				defer hc.wg.Done()
				defer hc.endProbe(inst)
				hc.probe(ctx, serviceName, inst, path)
			}(serviceName, inst, config.HealthCheckPath)
		}
	}
}

// probe issues one bounded health request and flips the instance flag
func (hc *HealthChecker) probe(ctx context.Context, serviceName string, inst *domain.Instance, path string) {
	log := hc.logger.InstanceLogger(serviceName, inst.Address)

	probeCtx, cancel := context.WithTimeout(ctx, hc.config.Timeout)
	defer cancel()

	probeURL := inst.Address + path
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, probeURL, nil)
	if err != nil {
		log.WithError(err).Error("Failed to create health probe request")
		inst.MarkUnhealthy()
		return
	}
	req.Header.Set("User-Agent", "RideFlow-Gateway-HealthChecker/1.0")

	start := time.Now()
	resp, err := hc.client.Do(req)
	duration := time.Since(start)

	inst.UpdateLastHealthCheck()

	if err != nil {
		log.WithError(err).WithField("duration_ms", duration.Milliseconds()).
			Warn("Health probe failed")
		inst.MarkUnhealthy()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if !inst.IsHealthy() {
			log.Info("Instance recovered and marked healthy")
		}
		inst.MarkHealthy()
		return
	}

	log.WithFields(map[string]interface{}{
		"status_code": resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
	}).Warn("Health probe returned non-200 status")
	inst.MarkUnhealthy()
}

// beginProbe marks an instance probe as in flight; false when one already is
func (hc *HealthChecker) beginProbe(inst *domain.Instance) bool {
	hc.flightMu.Lock()
	defer hc.flightMu.Unlock()

	if hc.inFlight[inst] {
		return false
	}
	hc.inFlight[inst] = true
	return true
}

// endProbe clears the in-flight marker for an instance
func (hc *HealthChecker) endProbe(inst *domain.Instance) {
	hc.flightMu.Lock()
	defer hc.flightMu.Unlock()
	delete(hc.inFlight, inst)
}
