package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeForbidden      = "forbidden"
	ErrCodeBadGateway     = "bad_gateway"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAgentError maps an error returned by the agent to a response.
// Internal storage failures are not echoed to the client.
func writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrInvalidDevice):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, ngsi.ErrTypeNotFound),
		errors.Is(err, ngsi.ErrBadRequest),
		errors.Is(err, ngsi.ErrSecurityInformationMissing):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, ngsi.ErrAccessForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, ngsi.ErrRegistryNotAvailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, ngsi.ErrRegistration),
		errors.Is(err, ngsi.ErrUnregistration),
		errors.Is(err, ngsi.ErrEntityUpdate):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	case errors.As(err, new(*url.Error)):
		// Transport failure talking to the broker or identity service.
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "upstream service unreachable")
	default:
		writeInternalError(w, "internal error")
	}
}
