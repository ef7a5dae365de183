package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/api/handlers"
	"deploy-orchestrator-go/internal/api/middleware"
	"deploy-orchestrator-go/internal/config"
)

// Orchestrator is everything the API needs from the deployment engine.
type Orchestrator interface {
	handlers.Deployments
	handlers.Stats
}

// NewRouter creates a new Chi router with all routes and middleware configured
func NewRouter(
	orch Orchestrator,
	cluster handlers.Pinger,
	store handlers.Pinger,
	cfg *config.Config,
	logger *zap.Logger,
	leader handlers.LeaderChecker,
) chi.Router {
	r := chi.NewRouter()

	requestTimeout := 60 * time.Second
	if cfg != nil && cfg.RequestTimeout > 0 {
		requestTimeout = cfg.RequestTimeout
	}

	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Timeout(requestTimeout))

	deploymentHandler := handlers.NewDeploymentHandler(orch, logger)
	statusHandler := handlers.NewStatusHandler(orch, cluster, cfg, logger, leader)
	healthHandler := handlers.NewHealthHandler(cluster, store, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)
		r.Get("/ready", healthHandler.HandleReady)
		r.Get("/status", statusHandler.Handle)

		// Everything touching deployments needs a caller
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Post("/deployments", deploymentHandler.Create)
			r.Get("/deployments/{deployment_id}", deploymentHandler.Get)
			r.Get("/deployments/{deployment_id}/manifests", deploymentHandler.Manifests)
			r.Delete("/deployments/{deployment_id}", deploymentHandler.Delete)
			r.Get("/projects/{project_id}/deployments", deploymentHandler.ListByProject)
		})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
