// Package http wires the chi route tree and the HTTP server for the
// fiscal API.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/interfaces/http/handlers"
	"github.com/contabil/fiscore/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware the route tree needs.
type RouterConfig struct {
	InstanceHandler *handlers.InstanceHandler
	UploadHandler   *handlers.UploadHandler
	DocumentHandler *handlers.DocumentHandler
	DeliveryHandler *handlers.DeliveryHandler
	HealthHandler   *handlers.HealthHandler

	LoggingMiddleware *middleware.LoggingMiddleware
	TenantMiddleware  *middleware.TenantMiddleware

	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the complete route tree: public probes, the metrics
// endpoint, and the tenant-scoped /api/v1 resources.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.LoggingMiddleware != nil {
		r.Use(cfg.LoggingMiddleware.Handler)
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.TenantMiddleware != nil {
			api.Use(cfg.TenantMiddleware.Handler)
		}

		registerInstanceRoutes(api, cfg.InstanceHandler)
		registerUploadRoutes(api, cfg.UploadHandler)
		registerDocumentRoutes(api, cfg.DocumentHandler)
		registerDeliveryRoutes(api, cfg.DeliveryHandler)
	})

	return r
}

func registerInstanceRoutes(r chi.Router, h *handlers.InstanceHandler) {
	if h == nil {
		return
	}
	r.Route("/instances", func(ir chi.Router) {
		ir.Get("/", h.List)
		ir.Post("/generate", h.Generate)

		ir.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Post("/complete", h.Complete)
			item.Post("/unmark", h.Unmark)
		})
	})
}

func registerUploadRoutes(r chi.Router, h *handlers.UploadHandler) {
	if h == nil {
		return
	}
	r.Route("/uploads", func(ur chi.Router) {
		ur.Get("/", h.List)
		ur.Post("/", h.Create)
		ur.Post("/classify-batch", h.ClassifyBatch)

		ur.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Delete("/", h.Delete)
			item.Post("/reprocess", h.Reprocess)
			item.Post("/classify", h.Classify)
		})
	})
}

func registerDocumentRoutes(r chi.Router, h *handlers.DocumentHandler) {
	if h == nil {
		return
	}
	r.Route("/documents", func(dr chi.Router) {
		dr.Get("/", h.List)

		dr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Delete("/", h.Delete)
			item.Post("/viewed", h.Viewed)
		})
	})
}

func registerDeliveryRoutes(r chi.Router, h *handlers.DeliveryHandler) {
	if h == nil {
		return
	}
	r.Route("/deliveries", func(dr chi.Router) {
		dr.Get("/", h.List)

		dr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Post("/cancel", h.Cancel)
			item.Post("/reprocess", h.Reprocess)
		})
	})
}
