package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-dedupe/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	detectHandler := handlers.NewDetectHandler(s.engine, s.photos, s.jobManager)
	reviewHandler := handlers.NewReviewHandler(s.engine)
	maintenanceHandler := handlers.NewMaintenanceHandler(s.engine, s.photos)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Detection (long-running operations)
		r.Post("/detect", detectHandler.Start)
		r.Get("/detect/{jobId}", detectHandler.Status)
		r.Get("/detect/{jobId}/events", detectHandler.Events)
		r.Delete("/detect/{jobId}", detectHandler.Cancel)

		// Review queue
		r.Post("/batches/next", reviewHandler.NextBatch)
		r.Post("/groups/processed", reviewHandler.MarkProcessed)

		// Checkpoints
		r.Get("/checkpoints/{ownerId}", reviewHandler.GetCheckpoint)
		r.Put("/checkpoints/{ownerId}", reviewHandler.SaveCheckpoint)
		r.Delete("/checkpoints/{ownerId}", reviewHandler.ClearCheckpoint)

		// Store upkeep
		r.Post("/maintenance/cleanup", maintenanceHandler.Cleanup)
	})
}
