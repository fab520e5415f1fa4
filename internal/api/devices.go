package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/autopair-core/internal/device"
	"github.com/nerrad567/autopair-core/internal/pairing"
)

// workflowAccepted is the 202 body for background workflows.
type workflowAccepted struct {
	Status   string           `json:"status"`
	Workflow pairing.Workflow `json:"workflow"`
	DeviceID string           `json:"device_id,omitempty"`
	Devices  int              `json:"devices,omitempty"`
}

// handleListDevices returns all devices in presentation order.
//
// Query parameters:
//   - saved: "true" or "false" to filter on IsSaved
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.Devices()

	if savedStr := r.URL.Query().Get("saved"); savedStr != "" {
		saved, err := strconv.ParseBool(savedStr)
		if err != nil {
			writeBadRequest(w, "saved must be true or false")
			return
		}
		filtered := devices[:0]
		for _, d := range devices {
			if d.IsSaved == saved {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleRefreshDevices re-enumerates paired devices synchronously.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Refresh(r.Context()); err != nil {
		s.logger.Warn("manual refresh failed", "error", err)
		writeUnavailable(w, "bluetooth enumeration unavailable")
		return
	}
	devices := s.registry.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleToggleSaved flips the saved flag of a device.
func (s *Server) handleToggleSaved(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.ToggleSaved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to toggle saved flag")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleRemoveDevice forgets a device that is no longer paired.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	err := s.registry.RemoveDevice(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDevicePaired):
		writeConflict(w, "device is still paired; unpair it first")
	default:
		writeInternalError(w, "failed to remove device")
	}
}

// handleWorkflow returns a handler that starts wf for the device in the
// URL and answers 202 without waiting for it.
func (s *Server) handleWorkflow(wf pairing.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if s.workflows == nil {
			writeUnavailable(w, "pairing is not available")
			return
		}
		if _, err := s.registry.Device(id); err != nil {
			writeNotFound(w, "device not found")
			return
		}

		s.runBackground(func(ctx context.Context) {
			out, err := s.workflows.RunWorkflow(ctx, id, wf)
			if err != nil {
				s.logger.Warn("workflow failed to start", "device_id", id, "workflow", wf, "error", err)
				return
			}
			s.logger.Info("workflow finished",
				"device_id", id,
				"workflow", wf,
				"run_id", out.RunID,
				"success", out.Success,
			)
		})

		writeJSON(w, http.StatusAccepted, workflowAccepted{Status: "accepted", Workflow: wf, DeviceID: id})
	}
}

// handlePairAll pairs and connects every saved device in the background.
func (s *Server) handlePairAll(w http.ResponseWriter, _ *http.Request) {
	s.startBatch(w, pairing.WorkflowPairConnect, func(ctx context.Context) []pairing.Outcome {
		return s.workflows.PairAllSaved(ctx)
	})
}

// handleUnpairAll unpairs every saved device in the background.
func (s *Server) handleUnpairAll(w http.ResponseWriter, _ *http.Request) {
	s.startBatch(w, pairing.WorkflowUnpair, func(ctx context.Context) []pairing.Outcome {
		return s.workflows.UnpairAllSaved(ctx)
	})
}

func (s *Server) startBatch(w http.ResponseWriter, wf pairing.Workflow, fn func(ctx context.Context) []pairing.Outcome) {
	if s.workflows == nil {
		writeUnavailable(w, "pairing is not available")
		return
	}
	saved := len(s.registry.SavedDevices())

	s.runBackground(func(ctx context.Context) {
		outcomes := fn(ctx)
		succeeded := 0
		for _, out := range outcomes {
			if out.Success {
				succeeded++
			}
		}
		s.logger.Info("batch workflow finished", "workflow", wf, "devices", len(outcomes), "succeeded", succeeded)
	})

	writeJSON(w, http.StatusAccepted, workflowAccepted{Status: "accepted", Workflow: wf, Devices: saved})
}
