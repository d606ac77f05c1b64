package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	"github.com/rideflow/gateway/internal/handler"
	"github.com/rideflow/gateway/internal/registry"
	"github.com/rideflow/gateway/internal/service"
	"github.com/rideflow/gateway/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures forwarded calls and returns a scripted outcome.
type recordingTransport struct {
	mu      sync.Mutex
	calls   []forwardedCall
	outcome domain.Outcome
}

type forwardedCall struct {
	address string
	path    string
}

func (rt *recordingTransport) RoundTrip(_ context.Context, address string, req *http.Request) domain.Outcome {
	rt.mu.Lock()
	rt.calls = append(rt.calls, forwardedCall{address: address, path: req.URL.Path})
	outcome := rt.outcome
	rt.mu.Unlock()

	if outcome.Kind == domain.OutcomeSuccess && outcome.Response == nil {
		outcome.Response = &domain.ResponseMeta{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       []byte(`{"ok":true}`),
		}
	}
	return outcome
}

func (rt *recordingTransport) recorded() []forwardedCall {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]forwardedCall(nil), rt.calls...)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

type gatewayFixture struct {
	registry  *registry.Registry
	transport *recordingTransport
	handler   *handler.GatewayHandler
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	log := newTestLogger(t)
	reg := registry.NewRegistry(log)
	require.NoError(t, reg.Register(domain.ServiceConfig{
		ServiceName: "ride-service",
		Instances: []domain.InstanceConfig{
			{Address: "http://ride-a:8080", Weight: 1},
			{Address: "http://ride-b:8080", Weight: 1},
		},
		HealthCheckPath:  "/health",
		RequestTimeout:   2 * time.Second,
		MaxRetries:       0,
		BreakerThreshold: 3,
		RecoveryTimeout:  time.Second,
	}))

	transport := &recordingTransport{outcome: domain.Outcome{Kind: domain.OutcomeSuccess}}
	router := service.NewRequestRouter(reg, transport, service.NewMetrics(), log)

	return &gatewayFixture{
		registry:  reg,
		transport: transport,
		handler:   handler.NewGatewayHandler(router, log),
	}
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGatewayForwardsByServiceSegment(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ride-service/rides/42", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	calls := fx.transport.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "http://ride-a:8080", calls[0].address)
	assert.Equal(t, "/rides/42", calls[0].path,
		"service segment is stripped before forwarding")
}

func TestGatewayBareServicePath(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ride-service", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	calls := fx.transport.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/", calls[0].path)
}

func TestGatewayUnknownService(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ghost-service/things", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "SERVICE_NOT_FOUND", body["error"])
	assert.Empty(t, fx.transport.recorded())
}

func TestGatewayRootPath(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayCircuitOpenResponse(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)

	breaker, err := fx.registry.Breaker("ride-service")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		breaker.RecordFailure()
	}
	require.Equal(t, domain.BreakerOpen, breaker.State())

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ride-service/rides/42", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["error"])
	assert.Equal(t, "circuit_open", body["reason"])
	assert.Empty(t, fx.transport.recorded(), "no upstream contact while the breaker is open")
}

func TestGatewayNoHealthyInstancesResponse(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)

	instances, err := fx.registry.Instances("ride-service")
	require.NoError(t, err)
	for _, inst := range instances {
		inst.MarkUnhealthy()
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ride-service/rides/42", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["error"])
	assert.Equal(t, "no_healthy_instances", body["reason"])
	assert.Empty(t, fx.transport.recorded())
}

func TestGatewayUpstreamStatusPassThrough(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)
	fx.transport.outcome = domain.Outcome{
		Kind: domain.OutcomeSuccess,
		Response: &domain.ResponseMeta{
			StatusCode: http.StatusConflict,
			Header:     http.Header{"X-Conflict-Id": []string{"ride-42"}},
			Body:       []byte(`{"error":"ride already assigned"}`),
		},
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ride-service/rides/42/assign", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ride-42", rec.Header().Get("X-Conflict-Id"))
	assert.JSONEq(t, `{"error":"ride already assigned"}`, rec.Body.String())
}

func TestGatewayTransportFailureResponse(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t)
	fx.transport.outcome = domain.Outcome{Kind: domain.OutcomeTransportFailure, Err: assert.AnError}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ride-service/rides/42", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "retries_exhausted", body["reason"])
}
