package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/iotagent-ngsi/internal/audit"
)

// handleListAudit returns the provisioning trail, most recent first.
//
// Query parameters:
//   - action: register or unregister
//   - device_id: filter by device
//   - outcome: success or failure
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
//
// Unparseable limit and offset values are ignored.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
		Outcome:  q.Get("outcome"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list provisioning trail", "error", err)
		writeInternalError(w, "failed to list provisioning trail")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
