package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/autopair-core/internal/pairing"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/refresh", s.handleRefreshDevices)
				r.Post("/pair-all", s.handlePairAll)
				r.Post("/unpair-all", s.handleUnpairAll)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleRemoveDevice)
					r.Post("/toggle-saved", s.handleToggleSaved)
					r.Post("/pair", s.handleWorkflow(pairing.WorkflowPair))
					r.Post("/connect", s.handleWorkflow(pairing.WorkflowConnect))
					r.Post("/unpair", s.handleWorkflow(pairing.WorkflowUnpair))
				})
			})

			r.Get("/history", s.handleListHistory)

			r.Route("/display", func(r chi.Router) {
				r.Get("/", s.handleGetDisplay)
				r.Post("/", s.handleSetDisplay)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.registry.Count(),
	})
}
