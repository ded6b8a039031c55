// Package rest wires the HTTP routes and middleware stack.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"statbucket/application/stats"
	"statbucket/infrastructure/config"
	"statbucket/infrastructure/observability"
	"statbucket/interfaces/http/rest/handlers"
	"statbucket/interfaces/http/rest/middleware"
	"statbucket/pkg/auth"
)

// Router creates and configures the HTTP router.
type Router struct {
	service   *stats.Service
	collector *observability.Collector
	cfg       *config.Config
	logger    *zap.Logger
}

// NewRouter creates a new router instance.
func NewRouter(
	service *stats.Service,
	collector *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		service:   service,
		collector: collector,
		cfg:       cfg,
		logger:    logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.collector))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.Origins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Method(http.MethodGet, "/metrics", rt.collector.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if rt.cfg.BreakerEnabled {
			r.Use(middleware.CircuitBreaker(middleware.DefaultBreakerConfig("api"), rt.logger))
		}
		r.Use(rt.authenticator().Handler)

		handler := handlers.NewStatsHandler(rt.service, rt.logger)
		r.Route("/stats", func(r chi.Router) {
			r.Post("/", handler.PutStats)
			r.Get("/", handler.GetStats)
			r.Delete("/", handler.ClearStats)
			r.Get("/histogram", handler.GetHistogram)
		})
		r.Get("/sessions", handler.ListSessions)
		r.Get("/logs", handler.ListLogs)
	})

	return router
}

// authenticator builds the bearer-token guard. Without a usable validator
// the middleware rejects every presented token.
func (rt *Router) authenticator() *middleware.Authenticator {
	var validator *auth.Validator
	if rt.cfg.JWTSecret != "" {
		v, err := auth.NewValidator(rt.cfg.JWTSecret, rt.cfg.JWTIssuer)
		if err != nil {
			rt.logger.Error("token validator disabled", zap.Error(err))
		}
		validator = v
	}
	return middleware.NewAuthenticator(validator, rt.cfg.AllowAnonymous, rt.logger)
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck probes the backing store before reporting ready.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := rt.service.Ping(r.Context()); err != nil {
		rt.logger.Warn("readiness probe failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
