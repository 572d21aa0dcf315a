package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	monitorHandler "github.com/examsentry/backend/internal/handler/monitor"
	sessionHandler "github.com/examsentry/backend/internal/handler/session"
	middlewarePkg "github.com/examsentry/backend/internal/middleware"
	"github.com/examsentry/backend/internal/service/detection"
	"github.com/examsentry/backend/internal/service/hub"
	"github.com/examsentry/backend/internal/service/report"
	sessionService "github.com/examsentry/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(registry *sessionService.Service, broadcastHub *hub.Hub, dispatcher *detection.Dispatcher, pipeline *detection.Pipeline, reports *report.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessions := sessionHandler.New(registry, reports)
	monitoring := monitorHandler.New(broadcastHub, dispatcher, pipeline)

	r.Route("/api", func(api chi.Router) {
		sessions.RegisterRoutes(api)
		monitoring.RegisterRoutes(api)
	})

	return r
}
