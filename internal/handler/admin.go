package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	gwerrors "github.com/rideflow/gateway/internal/errors"
	"github.com/rideflow/gateway/internal/registry"
	"github.com/rideflow/gateway/internal/service"
	"github.com/rideflow/gateway/pkg/logger"
)

// AdminHandler exposes the status snapshot and the administrative operations
// (instance add/remove, breaker reset) over HTTP, forwarding directly to the
// registry's core operations.
type AdminHandler struct {
	registry  *registry.Registry
	metrics   *service.Metrics
	logger    *logger.Logger
	startTime time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(reg *registry.Registry, metrics *service.Metrics, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		registry:  reg,
		metrics:   metrics,
		logger:    log,
		startTime: time.Now(),
	}
}

// AddInstanceRequest is the payload for registering a new instance
type AddInstanceRequest struct {
	Address string `json:"address"`
	Weight  int    `json:"weight,omitempty"`
}

// StatusResponse is the observability payload served at /status
type StatusResponse struct {
	Status        string                            `json:"status"`
	UptimeSeconds int64                             `json:"uptime_seconds"`
	Timestamp     time.Time                         `json:"timestamp"`
	TotalRequests int64                             `json:"total_requests"`
	TotalErrors   int64                             `json:"total_errors"`
	Services      []ServiceStatusEntry              `json:"services"`
	Metrics       map[string]service.ServiceMetrics `json:"metrics"`
}

// ServiceStatusEntry mirrors the registry snapshot in the JSON surface
type ServiceStatusEntry struct {
	ServiceName  string                `json:"service_name"`
	BreakerState string                `json:"breaker_state"`
	FailureCount int                   `json:"failure_count"`
	Instances    []InstanceStatusEntry `json:"instances"`
}

// InstanceStatusEntry is one instance's snapshot in the JSON surface
type InstanceStatusEntry struct {
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
}

// RegisterRoutes mounts the status and admin routes on the given router
func (h *AdminHandler) RegisterRoutes(r *mux.Router, adminMiddleware func(http.Handler) http.Handler) {
	r.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	if adminMiddleware != nil {
		admin.Use(adminMiddleware)
	}
	admin.HandleFunc("/services/{service}/instances", h.AddInstanceHandler).Methods(http.MethodPost)
	admin.HandleFunc("/services/{service}/instances", h.RemoveInstanceHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/services/{service}/breaker/reset", h.ResetBreakerHandler).Methods(http.MethodPost)
}

// StatusHandler serves the per-service status snapshot
func (h *AdminHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Status()

	services := make([]ServiceStatusEntry, len(statuses))
	healthyServices := 0
	for i, st := range statuses {
		instances := make([]InstanceStatusEntry, len(st.Instances))
		anyHealthy := false
		for j, inst := range st.Instances {
			instances[j] = InstanceStatusEntry{Address: inst.Address, Healthy: inst.Healthy}
			anyHealthy = anyHealthy || inst.Healthy
		}
		if anyHealthy {
			healthyServices++
		}
		services[i] = ServiceStatusEntry{
			ServiceName:  st.ServiceName,
			BreakerState: st.BreakerState,
			FailureCount: st.FailureCount,
			Instances:    instances,
		}
	}

	status := "healthy"
	if healthyServices == 0 && len(statuses) > 0 {
		status = "unhealthy"
	} else if healthyServices < len(statuses) {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
		TotalRequests: h.metrics.TotalRequests(),
		TotalErrors:   h.metrics.TotalErrors(),
		Services:      services,
		Metrics:       h.metrics.Snapshot(),
	})
}

// AddInstanceHandler registers a new instance with a service
func (h *AdminHandler) AddInstanceHandler(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]

	var req AddInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "address is required")
		return
	}

	weight := req.Weight
	if weight == 0 {
		weight = 1
	}

	if err := h.registry.AddInstance(serviceName, req.Address, weight); err != nil {
		h.writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "instance added"})
}

// RemoveInstanceHandler removes an instance from a service. The instance
// address is passed as a query parameter because addresses contain slashes.
func (h *AdminHandler) RemoveInstanceHandler(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]

	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "address query parameter is required")
		return
	}

	if err := h.registry.RemoveInstance(serviceName, address); err != nil {
		h.writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "instance removed"})
}

// ResetBreakerHandler forces a service's circuit breaker back to closed
func (h *AdminHandler) ResetBreakerHandler(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]

	if err := h.registry.ResetBreaker(serviceName); err != nil {
		h.writeRegistryError(w, err)
		return
	}

	h.logger.WithField("service", serviceName).Info("Circuit breaker reset via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "breaker reset"})
}

// writeRegistryError maps registry errors onto the admin JSON surface
func (h *AdminHandler) writeRegistryError(w http.ResponseWriter, err error) {
	writeError(w, gwerrors.GetHTTPStatusCode(err), string(gwerrors.GetErrorCode(err)), err.Error())
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
