package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

// healthCheckTimeout bounds each dependency check run by GET /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the agent version and the state of each dependency.
// Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "component", name, "error", err)
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleListDevices returns every provisioned device ordered by id.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.agent.ListDevices(r.Context())
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.agent.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleRegisterDevice provisions a device and registers it with the Context Broker.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req ngsi.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.agent.Register(r.Context(), req)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleUnregisterDevice removes a device and cancels its registration.
//
// Query parameters:
//   - type: the device type (required)
func (s *Server) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	deviceType := r.URL.Query().Get("type")
	if deviceType == "" {
		writeBadRequest(w, "type query parameter is required")
		return
	}

	if err := s.agent.Unregister(r.Context(), chi.URLParam(r, "id"), deviceType); err != nil {
		writeAgentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateAttributes pushes attribute values for a device to the Context Broker.
// The body is a JSON array of {name, type, value} objects.
//
// Query parameters:
//   - type: the device type (required)
//
// The trust credential for secured types is taken from configuration, never
// from the request.
func (s *Server) handleUpdateAttributes(w http.ResponseWriter, r *http.Request) {
	deviceType := r.URL.Query().Get("type")
	if deviceType == "" {
		writeBadRequest(w, "type query parameter is required")
		return
	}

	var attrs []ngsi.AttributeValue
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(attrs) == 0 {
		writeBadRequest(w, "at least one attribute is required")
		return
	}

	resp, err := s.agent.UpdateValue(r.Context(), chi.URLParam(r, "id"), deviceType, attrs)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
