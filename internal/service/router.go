package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	gwerrors "github.com/rideflow/gateway/internal/errors"
	"github.com/rideflow/gateway/pkg/logger"
)

// RequestRouter orchestrates a single inbound request against a logical
// service: breaker gate, instance selection, delegated transport call, and
// outcome feedback into breaker and instance health.
type RequestRouter struct {
	catalog   ServiceCatalog
	transport domain.Transport
	metrics   *Metrics
	logger    *logger.Logger
}

// NewRequestRouter creates a new request router
func NewRequestRouter(catalog ServiceCatalog, transport domain.Transport, metrics *Metrics, log *logger.Logger) *RequestRouter {
	return &RequestRouter{
		catalog:   catalog,
		transport: transport,
		metrics:   metrics,
		logger:    log.RouterLogger(),
	}
}

// Route forwards one inbound request to the named service, retrying transport
// failures up to the service's maxRetries. Every attempt feeds breaker and
// instance health state; only the final attempt's outcome reaches the caller.
// A received upstream response - including 4xx/5xx - is a success from the
// breaker's point of view: the breaker tracks process availability, not
// business-level status codes. A canceled caller context surfaces as-is and
// leaves breaker and instance health untouched.
func (rt *RequestRouter) Route(ctx context.Context, serviceName string, req *http.Request) (*domain.ResponseMeta, error) {
	config, err := rt.catalog.GetConfig(serviceName)
	if err != nil {
		return nil, err
	}

	breaker, err := rt.catalog.Breaker(serviceName)
	if err != nil {
		return nil, err
	}
	selector, err := rt.catalog.Selector(serviceName)
	if err != nil {
		return nil, err
	}

	log := rt.logger.ServiceLogger(serviceName)

	// Buffer the inbound body up front. A retried attempt must forward the
	// same payload, and the first attempt's backend may have consumed the
	// original reader before failing.
	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, gwerrors.WrapError(err, gwerrors.ErrCodeInternalError,
				"failed to buffer request body")
		}
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if !breaker.AllowRequest() {
			log.WithField("attempt", attempt).Warn("Request rejected, circuit open")
			rt.metrics.IncrementRejections(serviceName)
			return nil, gwerrors.NewServiceUnavailableError(serviceName, gwerrors.ReasonCircuitOpen)
		}

		instances, err := rt.catalog.Instances(serviceName)
		if err != nil {
			return nil, err
		}

		instance := selector.SelectInstance(instances)
		if instance == nil {
			log.WithField("attempt", attempt).Warn("Request rejected, no healthy instances")
			rt.metrics.IncrementRejections(serviceName)
			return nil, gwerrors.NewServiceUnavailableError(serviceName, gwerrors.ReasonNoHealthyInstances)
		}

		rt.metrics.IncrementRequests(serviceName, instance.Address)

		// Each attempt gets a fresh reader over the buffered body.
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
		start := time.Now()
		outcome := rt.transport.RoundTrip(attemptCtx, instance.Address, req)
		duration := time.Since(start)
		cancel()

		rt.metrics.RecordLatency(serviceName, duration)

		if outcome.Kind == domain.OutcomeSuccess {
			breaker.RecordSuccess()
			instance.MarkHealthy()

			log.WithFields(map[string]interface{}{
				"instance":    instance.Address,
				"status_code": outcome.Response.StatusCode,
				"duration_ms": duration.Milliseconds(),
				"attempt":     attempt,
			}).Debug("Request forwarded")

			return outcome.Response, nil
		}

		if outcome.Kind == domain.OutcomeCanceled {
			// The caller walked away; the backend did nothing wrong.
			// No breaker or health feedback, no retry.
			log.WithField("attempt", attempt).Debug("Request abandoned by caller")
			return nil, outcome.Err
		}

		// Timeout or transport failure: the instance leaves the selection
		// pool immediately, without waiting for the next health tick.
		breaker.RecordFailure()
		instance.IncrementFailures()
		instance.MarkUnhealthy()
		rt.metrics.IncrementErrors(serviceName, instance.Address)

		log.WithFields(map[string]interface{}{
			"instance":    instance.Address,
			"outcome":     outcome.Kind.String(),
			"duration_ms": duration.Milliseconds(),
			"attempt":     attempt,
			"max_retries": config.MaxRetries,
		}).Warn("Attempt failed")
	}

	return nil, gwerrors.NewServiceUnavailableError(serviceName, gwerrors.ReasonRetriesExhausted)
}
