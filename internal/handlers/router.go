package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/divingclub/clubattrs/internal/infrastructure/metrics"
	"github.com/divingclub/clubattrs/internal/repositories"
	"github.com/divingclub/clubattrs/internal/services/attributes"
	"github.com/divingclub/clubattrs/internal/services/eligibility"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies wires the services behind the HTTP API.
type Dependencies struct {
	Registry   *attributes.Registry
	Store      *attributes.Store
	Conditions repositories.ConditionRepository
	Gate       *eligibility.Gate
	Health     HealthChecker
	Collector  *metrics.Collector
	Exporter   *metrics.PrometheusExporter
	// MetricsPath defaults to /metrics.
	MetricsPath string
	Logger      *slog.Logger
}

// Handler serves the attribute, condition and eligibility API.
type Handler struct {
	registry   *attributes.Registry
	store      *attributes.Store
	conditions repositories.ConditionRepository
	gate       *eligibility.Gate
	health     HealthChecker
	collector  *metrics.Collector
	logger     *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(deps Dependencies) http.Handler {
	h := &Handler{
		registry:   deps.Registry,
		store:      deps.Store,
		conditions: deps.Conditions,
		gate:       deps.Gate,
		health:     deps.Health,
		collector:  deps.Collector,
		logger:     logging.OrDiscard(deps.Logger),
	}
	if h.collector == nil {
		h.collector = metrics.NewCollector()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogging(h.logger))
	r.Use(metrics.HTTPMiddleware(h.collector, deps.Exporter))

	r.Get("/healthz", h.handleHealth)
	if deps.Exporter != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Exporter.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/definitions", h.handleDefine)
		api.Get("/definitions/{kind}", h.handleListDefinitions)
		api.Put("/definitions/{kind}/{key}", h.handleUpdateDefinition)
		api.Delete("/definitions/{kind}/{key}", h.handleDeactivateDefinition)
		api.Post("/definitions/{kind}/{key}/activate", h.handleActivateDefinition)

		api.Get("/values/{kind}/{id}", h.handleListValues)
		api.Delete("/values/{kind}/{id}", h.handleDeleteAllValues)
		api.Put("/values/{kind}/{id}/{key}", h.handleSetValue)
		api.Delete("/values/{kind}/{id}/{key}", h.handleDeleteValue)

		api.Get("/actions/{actionID}/conditions", h.handleListConditions)
		api.Post("/actions/{actionID}/conditions", h.handleCreateCondition)
		api.Post("/actions/{actionID}/conditions/import", h.handleImportConditions)
		api.Post("/actions/{actionID}/eligibility", h.handleEligibility)
		api.Delete("/conditions/{id}", h.handleDeleteCondition)
	})

	return r
}
