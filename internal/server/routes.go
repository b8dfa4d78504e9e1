package server

import (
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/photoquest/internal/handler/health"
)

func addRoutes(r chi.Router, d Deps) {
	logger := d.Logger
	aiLimit := newIPRateLimiter(d.AIRatePerMinute, d.AIRateBurst)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("PhotoQuest API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, d.Health).Routes())
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Post("/api/sessions", handleCreateSession(d.Sessions, logger))

	// Session routes: {sessionID} resolved by sessionMiddleware.
	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Use(sessionMiddleware(d.Sessions, logger))
		r.Get("/", handleGetSession())
		r.Delete("/", handleDeleteSession(d.Sessions, logger))
		r.With(aiLimit.Middleware).Post("/quest", handleCreateQuest(logger))
		r.Delete("/quest", handleResetQuest(logger))
		r.Post("/next", handleNextTask(logger))
		r.With(aiLimit.Middleware).Post("/tasks/{taskID}/photo", handleValidatePhoto(logger))
		r.Get("/events", handleEvents(d.Broker, logger))
	})

	r.Post("/api/config/preview", handlePreview())
	r.Get("/api/geo/cities", handleSearchCities(d.Geocoder, logger))
	r.Get("/api/geo/pois", handleResolvePOIs(d.POIs))

	// Direct access to the generative backend.
	r.Route("/api/ai", func(r chi.Router) {
		r.Use(aiLimit.Middleware)
		r.Post("/generate-quest", handleGenerateQuest(d.AI, logger))
		r.Post("/validate-photo", handleVerifyPhoto(d.AI, logger))
	})

	if d.WebDir != "" {
		if info, err := os.Stat(d.WebDir); err == nil && info.IsDir() {
			logger.Info("serving web app", "dir", d.WebDir)
			r.NotFound(handleSPA(d.WebDir))
		}
	}
}
