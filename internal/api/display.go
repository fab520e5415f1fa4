package api

import (
	"encoding/json"
	"net/http"
)

// displayRequest is the body of POST /display.
type displayRequest struct {
	External *bool `json:"external"`
}

// displayResponse reports the display topology. Known is false until the
// watcher has probed its source once.
type displayResponse struct {
	External bool `json:"external"`
	Known    bool `json:"known"`
	Writable bool `json:"writable"`
}

func (s *Server) displayState() displayResponse {
	resp := displayResponse{Writable: s.displaySet != nil}
	if s.display != nil {
		resp.External, resp.Known = s.display.State()
	}
	return resp
}

func (s *Server) handleGetDisplay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.displayState())
}

// handleSetDisplay reports the display topology when the display source
// is "api". The watcher picks the value up and emits a change event if it
// flipped.
func (s *Server) handleSetDisplay(w http.ResponseWriter, r *http.Request) {
	if s.displaySet == nil {
		writeConflict(w, "display source is not api")
		return
	}

	var req displayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.External == nil {
		writeBadRequest(w, "external is required")
		return
	}

	s.displaySet.Set(*req.External)
	s.logger.Info("display state reported via api", "external", *req.External)

	writeJSON(w, http.StatusAccepted, map[string]any{"external": *req.External})
}
