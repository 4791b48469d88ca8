package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"billing-crm/internal/api/handler"
	mw "billing-crm/internal/api/middleware"
	"billing-crm/internal/config"
)

func SetupRouter(
	session handler.SessionService,
	generator handler.JobRunner,
	sweep handler.JobRunner,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupAuthRoutes(router, cfg, logger)
	setupWhatsAppRoutes(router, cfg, session, logger)
	setupJobRoutes(router, cfg, generator, sweep, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return router
}

func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupAuthRoutes(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	authHandler := handler.NewAuthHandler(*cfg, logger)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.GenerateBearerToken)
	})
}

func setupWhatsAppRoutes(router *chi.Mux, cfg *config.Config, session handler.SessionService, logger *slog.Logger) {
	whatsAppHandler := handler.NewWhatsAppHandler(session, logger)

	router.Route("/whatsapp", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/status", whatsAppHandler.GetStatus)
		r.Post("/connect", whatsAppHandler.Connect)
		r.Post("/send", whatsAppHandler.SendMessage)
		r.Post("/disconnect", whatsAppHandler.Disconnect)
	})
}

func setupJobRoutes(router *chi.Mux, cfg *config.Config, generator, sweep handler.JobRunner, logger *slog.Logger) {
	jobHandler := handler.NewJobHandler(generator, sweep, logger)

	router.Route("/jobs", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/invoices/run", jobHandler.RunInvoiceGeneration)
		r.Post("/sweep/run", jobHandler.RunReminderSweep)
	})
}
