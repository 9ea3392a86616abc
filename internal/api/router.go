package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/davinci-bridge/internal/auth"
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

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricPath, s.metrics)
	}

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	// Auth via ticket, validated in the handler.
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.With(s.requirePermission(auth.PermFireplaceRead)).Get("/system", s.handleSystemMetrics)

			r.Route("/fireplace", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermFireplaceRead))
					r.Get("/", s.handleGetFireplace)
					r.Get("/diagnostics", s.handleDiagnostics)
					r.Get("/history", s.handleStateHistory)
					r.Get("/commands", s.handleListCommands)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermFireplaceOperate))
					r.Post("/commands", s.handleExecuteCommand)
					r.Post("/refresh", s.handleRefresh)
				})

				r.With(s.requirePermission(auth.PermFireplaceConfig)).
					Put("/scan-interval", s.handleSetScanInterval)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.fp.State().Connected,
	})
}
