package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shiptrack/internal/handlers"
	"shiptrack/internal/storage"
)

// Deps are the collaborators the API serves
type Deps struct {
	Tracker handlers.PackageTracker
	List    storage.TrackingList
	Health  handlers.Pinger
	Logger  *slog.Logger
}

// NewRouter builds the chi router with the middleware stack and every API
// route registered
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	track := handlers.NewTrackHandler(deps.Tracker, logger)
	pkgs := handlers.NewPackagesHandler(deps.List, logger)
	health := handlers.NewHealthHandler(deps.Health)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(ContentTypeMiddleware)
	r.Use(SecurityMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/track/{number}", track.Track)

		r.Get("/packages", pkgs.List)
		r.Post("/packages", pkgs.Add)
		r.Delete("/packages/{number}", pkgs.Remove)

		r.Get("/health", health.HealthCheck)
	})

	return r
}
