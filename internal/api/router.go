package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket upgrade. Browsers cannot set an Authorization header
		// on the upgrade request, so auth is a token query parameter
		// validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Scene endpoints
			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetScene)
					r.Get("/transitions", s.handleListTransitions)

					r.Group(func(r chi.Router) {
						r.Use(s.requireWriteAccess)
						r.Post("/activate", s.handleActivateScene)
						r.Post("/deactivate", s.handleDeactivateScene)
					})
				})
			})

			// Reload scene definitions from disk
			r.With(s.requireWriteAccess).Post("/reload", s.handleReload)
		})
	})

	return r
}

// handleHealth returns the server health status, including database
// schema migration state when a reporter is wired.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.schema != nil {
		status, err := s.schema.MigrationStatus(r.Context())
		switch {
		case err != nil:
			s.logger.Warn("migration status unavailable", "error", err)
			resp["status"] = "degraded"
		case status.Pending > 0:
			resp["status"] = "degraded"
			resp["migrations"] = status
		default:
			resp["migrations"] = status
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
