package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
)

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged (probes, metrics scrapes).
	SkipPaths []string

	// SlowThreshold is the duration above which a request is logged at Warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the settings used by the API server.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 2 * time.Second,
	}
}

// wrap returns w wrapped for status and size accounting, unless an outer
// middleware already did.
func wrap(w http.ResponseWriter, r *http.Request) chimw.WrapResponseWriter {
	if ww, ok := w.(chimw.WrapResponseWriter); ok {
		return ww
	}
	return chimw.NewWrapResponseWriter(w, r.ProtoMajor)
}

// statusOf is the code sent, 200 when the handler never wrote a header.
func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// RequestLogging logs one line per request. The request text is never
// logged; only its size.
func RequestLogging(logger logging.Logger, config LoggingConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}
	logger = logger.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ww := wrap(w, r)
			start := time.Now()
			next.ServeHTTP(ww, r)
			took := time.Since(start)
			code := statusOf(ww)

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", code),
				logging.Float64("duration_ms", float64(took.Microseconds())/1000),
				logging.Int64("request_bytes", r.ContentLength),
				logging.Int("response_bytes", ww.BytesWritten()),
				logging.String("remote_addr", r.RemoteAddr),
				logging.String("request_id", chimw.GetReqID(r.Context())),
			}
			if client := ContextClientID(r.Context()); client != "" {
				fields = append(fields, logging.String("client", client))
			}

			level, msg := logger.Info, "request"
			switch {
			case code >= 500:
				level, msg = logger.Error, "request failed"
			case code >= 400:
				level, msg = logger.Warn, "request rejected"
			case config.SlowThreshold > 0 && took >= config.SlowThreshold:
				level, msg = logger.Warn, "slow request"
			}
			level(msg, fields...)
		})
	}
}

//Personal.AI order the ending
