package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	custommw "github.com/goldengai/venuesync/internal/middleware"
	"github.com/goldengai/venuesync/internal/observability"
	"github.com/goldengai/venuesync/internal/services"
)

// RouterDeps is everything the local API serves
type RouterDeps struct {
	Venues       *services.VenueService
	Media        *services.MediaService
	Info         *services.VenueInfoCache
	Sync         *services.SyncService
	RemoteMode   string
	APIKey       string
	APIKeyHeader string
	// HTTPMetrics is optional
	HTTPMetrics *observability.HTTPMetrics
}

// NewRouter builds the local API
func NewRouter(deps RouterDeps) http.Handler {
	healthHandler := NewHealthHandler(deps.RemoteMode)
	venueHandler := NewVenueHandler(deps.Venues)
	mediaHandler := NewMediaHandler(deps.Media)
	infoHandler := NewVenueInfoHandler(deps.Info)
	syncHandler := NewSyncHandler(deps.Sync)
	wsHandler := NewWebSocketHandler(deps.Sync)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware())
	if deps.HTTPMetrics != nil {
		r.Use(observability.MetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(custommw.APIKeyAuth(deps.APIKey, deps.APIKeyHeader))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)

	r.Route("/api/venues", func(r chi.Router) {
		r.Get("/", venueHandler.List)
		r.Post("/", venueHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", venueHandler.Get)
			r.Put("/", venueHandler.Put)
			r.Delete("/", venueHandler.Delete)

			r.Post("/visited", venueHandler.MarkVisited)
			r.Delete("/visited", venueHandler.ClearVisited)
			r.Post("/tags", venueHandler.AddTag)
			r.Delete("/tags/{tag}", venueHandler.RemoveTag)

			r.Post("/photo", mediaHandler.Upload)
			r.Get("/photo", mediaHandler.Get)
			r.Delete("/photo", mediaHandler.Delete)

			r.Get("/info", infoHandler.Get)
			r.Get("/comments", infoHandler.Comments)
			r.Post("/comments", infoHandler.AddComment)
		})
	})

	r.Get("/api/media/usage", mediaHandler.Usage)

	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/", syncHandler.Trigger)
		r.Delete("/", syncHandler.Reset)
		r.Get("/state", syncHandler.State)
		r.Get("/events", wsHandler.HandleConnection)
	})

	return r
}
