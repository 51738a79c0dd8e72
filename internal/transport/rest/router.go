package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/pos-payments/internal/gateway/mpesa"
	"github.com/frahmantamala/pos-payments/internal/reconciliation"
	"github.com/frahmantamala/pos-payments/internal/transport/middleware"
	"github.com/frahmantamala/pos-payments/internal/transport/swagger"
)

const OpenAPIPath = "./api/openapi.yml"

func RegisterAllRoutes(router *chi.Mux, healthHandler *HealthHandler, webhookHandler *reconciliation.WebhookHandler, logger *slog.Logger) {
	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.Actor)
	router.Use(middleware.LoggingMiddleware(logger, reconciliation.MaxCallbackBytes))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, OpenAPIPath)
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if healthHandler != nil {
			r.Get("/health", healthHandler.healthCheckHandler)
			r.Get("/ping", healthHandler.pingHandler)
		}

		if webhookHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/callback", webhookHandler.HandleCallback)
				pr.Post("/callback/{gateway}", webhookHandler.HandleCallback)
				// callback URL already registered with Safaricom for existing tills
				pr.Post("/mpesa/callback", webhookHandler.HandleCallbackFor(mpesa.Name))
			})
		}
	})
}
