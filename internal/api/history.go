package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/autopair-core/internal/history"
)

// handleListHistory returns recorded pairing results, newest first.
//
// Query parameters:
//   - device_id: only results for this device
//   - operation: pair, connect or unpair
//   - limit, offset: paging (limit defaults to 50, max 200)
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "pairing history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		DeviceID:  q.Get("device_id"),
		Operation: q.Get("operation"),
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	res, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing pairing history failed", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
