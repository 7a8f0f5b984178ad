package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/handlers"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/middleware"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree. Nil middleware is skipped.
type RouterConfig struct {
	// Handlers
	NLUHandler    *handlers.NLUHandler
	HealthHandler *handlers.HealthHandler

	// Middleware
	Auth        *middleware.APIKeyAuth
	CORS        *middleware.CORSConfig
	Logging     *middleware.LoggingConfig
	RateLimiter *middleware.RateLimiter
	RateLimit   middleware.RateLimitConfig

	// MaxBodySize caps request bodies; 0 disables the cap.
	MaxBodySize int64

	// Infrastructure
	Logger         logging.Logger
	MetricsHandler http.Handler
	HTTPRecorder   middleware.HTTPRecorder
}

// NewRouter constructs the complete HTTP route tree: global middleware,
// public probes and metrics, and the /api/v1 NLU group.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	r := chi.NewRouter()

	// --- Global middleware (applied to every request) ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestMeta)
	if cfg.Logging != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, *cfg.Logging))
	}
	r.Use(chimw.Recoverer)
	if cfg.HTTPRecorder != nil {
		r.Use(middleware.Metrics(cfg.HTTPRecorder))
	}
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(cfg.MaxBodySize))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, errors.New(errors.ErrCodeNotFound, "route not found").WithDetail(r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, errors.New(errors.ErrCodeBadRequest, "method not allowed").WithDetail(r.Method))
	})

	// --- Public endpoints (no auth, no rate limit) ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// --- API v1 ---
	r.Route("/api/v1", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Use(cfg.Auth.Handler)
		}
		// after auth so that authenticated clients get their own bucket
		if cfg.RateLimiter != nil {
			api.Use(middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit))
		}
		if cfg.NLUHandler != nil {
			cfg.NLUHandler.RegisterRoutes(api)
		}
	})

	return r
}

//Personal.AI order the ending
