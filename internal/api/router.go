package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tour/internal/viewer"
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

	// Viewer shell (embedded, or from disk when viewer_dir is set)
	r.Handle("/viewer/*", http.StripPrefix("/viewer", viewer.Handler(s.cfg.ViewerDir)))
	r.Handle("/viewer", http.RedirectHandler("/viewer/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Catalogue reads and sessions are open to anonymous viewers.
		r.Get("/tours", s.handleListTours)
		r.Get("/tours/{id}", s.handleGetTour)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)

				r.Route("/orientation", func(r chi.Router) {
					r.Post("/drag-start", s.handleDragStart)
					r.Post("/drag-move", s.handleDragMove)
					r.Post("/drag-end", s.handleDragEnd)
					r.Post("/wheel", s.handleWheel)
					r.Post("/auto-rotate", s.handleAutoRotate)
					r.Post("/look-at", s.handleLookAt)
				})

				r.Route("/navigation", func(r chi.Router) {
					r.Post("/next", s.handleNext)
					r.Post("/previous", s.handlePrevious)
					r.Post("/jump", s.handleJump)
					r.Post("/hotspot", s.handleHotspot)
				})

				r.Post("/display", s.handleDisplay)

				r.Get("/assets/{sceneId}", s.handleGetAsset)
				r.Post("/assets/{sceneId}/retry", s.handleRetryAsset)

				r.Route("/measurements", func(r chi.Router) {
					r.Get("/", s.handleGetMeasurements)
					r.Post("/click", s.handleMeasurementClick)
					r.Post("/calibration", s.handleCalibration)
					r.Delete("/calibration", s.handleCancelCalibration)
					r.Post("/clear", s.handleClearMeasurements)
					r.Get("/export", s.handleExportMeasurements)
					r.Delete("/{mid}", s.handleDeleteMeasurement)
					r.Patch("/{mid}", s.handleLabelMeasurement)
					r.Post("/{mid}/select", s.handleSelectMeasurement)
				})

				r.Route("/staging", func(r chi.Router) {
					r.Post("/", s.handleRequestStaging)
					r.Get("/{sceneId}", s.handleGetStaging)
					r.Delete("/{sceneId}", s.handleDiscardStaging)
					r.Post("/{sceneId}/original", s.handleShowOriginal)
					r.Get("/{sceneId}/history", s.handleStagingHistory)
				})

				r.Route("/world", func(r chi.Router) {
					r.Get("/markers", s.handleWorldMarkers)
					r.Post("/hover", s.handleWorldHover)
					r.Post("/select", s.handleWorldSelect)
					r.Post("/pick", s.handleWorldPick)
				})
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires a bearer token so the URL never carries one.
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Post("/tours", s.handleCreateTour)
			r.Patch("/tours/{id}", s.handleUpdateTour)
			r.Delete("/tours/{id}", s.handleDeleteTour)
			r.Get("/tours/{id}/exports", s.handleListExports)
			r.Get("/exports/{id}", s.handleGetExport)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
