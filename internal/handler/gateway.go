package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rideflow/gateway/internal/domain"
	gwerrors "github.com/rideflow/gateway/internal/errors"
	"github.com/rideflow/gateway/internal/service"
	"github.com/rideflow/gateway/pkg/logger"
)

// GatewayHandler is the inbound entrypoint. The first path segment names the
// logical backend service; the rest of the path is forwarded unchanged.
type GatewayHandler struct {
	router *service.RequestRouter
	logger *logger.Logger
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(router *service.RequestRouter, log *logger.Logger) *GatewayHandler {
	return &GatewayHandler{
		router: router,
		logger: log,
	}
}

// ServeHTTP routes one inbound request to its logical service
func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serviceName, rest := splitServicePath(r.URL.Path)
	if serviceName == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "request path does not name a service")
		return
	}

	// The router sees the service-relative path.
	forwarded := r.Clone(r.Context())
	forwarded.URL.Path = rest

	resp, err := h.router.Route(r.Context(), serviceName, forwarded)
	if err != nil {
		h.writeRoutingError(w, serviceName, err)
		return
	}

	writeUpstreamResponse(w, resp)
}

// writeRoutingError maps router errors onto the caller-facing JSON surface
func (h *GatewayHandler) writeRoutingError(w http.ResponseWriter, serviceName string, err error) {
	status := gwerrors.GetHTTPStatusCode(err)
	code := string(gwerrors.GetErrorCode(err))
	reason := gwerrors.GetReason(err)

	if status >= 500 {
		h.logger.ServiceLogger(serviceName).WithError(err).Error("Routing failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  code,
		"reason": reason,
	})
}

// writeUpstreamResponse relays the upstream response to the caller
func writeUpstreamResponse(w http.ResponseWriter, resp *domain.ResponseMeta) {
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// splitServicePath splits "/ride-service/rides/42" into
// ("ride-service", "/rides/42")
func splitServicePath(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", ""
	}

	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx], trimmed[idx:]
	}
	return trimmed, "/"
}
