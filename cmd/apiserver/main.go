// Command apiserver serves the AgriBot NLU HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/bootstrap"
	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/prometheus"
	grpcserver "github.com/turtacn/AgriBot-NLU/internal/interfaces/grpc"
	httpserver "github.com/turtacn/AgriBot-NLU/internal/interfaces/http"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/handlers"
	"github.com/turtacn/AgriBot-NLU/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const startupTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: AGRINLU_* environment)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	rulesOnly := flag.Bool("rules-only", false, "start without the model backend")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.With(logging.String("service", "apiserver"))

	logger.Info("starting AgriBot NLU API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("addr", cfg.Server.Addr()),
		logging.String("backend", cfg.Model.Backend))

	if err := run(cfg, *configPath, *rulesOnly, logger); err != nil {
		logger.Error("API server failed", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("API server stopped")
}

func run(cfg *config.Config, configPath string, rulesOnly bool, logger logging.Logger) error {
	var collector prometheus.MetricsCollector
	if cfg.Metrics.Enabled {
		c, err := prometheus.NewMetricsCollector(cfg.Metrics.CollectorConfig, logger)
		if err != nil {
			return fmt.Errorf("metrics collector: %w", err)
		}
		collector = c
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	rt, err := bootstrap.Build(startCtx, cfg, logger, bootstrap.Options{RulesOnly: rulesOnly, Collector: collector})
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close failed", logging.Err(err))
		}
	}()

	routerCfg := httpserver.RouterConfig{
		NLUHandler:    handlers.NewNLUHandler(rt.Service, logger),
		HealthHandler: handlers.NewHealthHandler(version, rt),
		Auth:          middleware.NewAPIKeyAuth(cfg.Server.APIKeys, logger),
		MaxBodySize:   cfg.Server.MaxBodySize,
		Logger:        logger,
	}
	logCfg := middleware.DefaultLoggingConfig()
	routerCfg.Logging = &logCfg
	if len(cfg.Server.CORSOrigins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = cfg.Server.CORSOrigins
		routerCfg.CORS = &corsCfg
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = middleware.DefaultRateLimitConfig()
		routerCfg.RateLimit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		routerCfg.RateLimit.Burst = cfg.RateLimit.Burst
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, routerCfg.RateLimit.IdleTimeout)
		defer limiter.Stop()
		routerCfg.RateLimiter = limiter
	}
	if collector != nil {
		routerCfg.MetricsHandler = collector.Handler()
		routerCfg.HTTPRecorder = rt.Metrics
	}

	if configPath != "" {
		watchConfig(configPath, logger, limiter)
	}

	server := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gs *grpcserver.Server
	if cfg.GRPC.Enabled {
		gs, err = startGRPC(ctx, cfg, rt, logger, errCh)
		if err != nil {
			_ = server.Stop(context.Background())
			return err
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	cancel()
	if gs != nil {
		if err := gs.Stop(context.Background()); err != nil {
			logger.Warn("grpc server shutdown failed", logging.Err(err))
		}
	}
	return server.Stop(context.Background())
}

// startGRPC serves the NLU service over gRPC with the same API keys as the
// HTTP API and keeps grpc.health.v1 in step with readiness.
func startGRPC(ctx context.Context, cfg *config.Config, rt *bootstrap.Runtime, logger logging.Logger, errCh chan<- error) (*grpcserver.Server, error) {
	opts := []grpcserver.Option{grpcserver.WithLogger(logger)}
	if rt.Metrics != nil {
		opts = append(opts, grpcserver.WithRecorder(rt.Metrics))
	}
	if auth := middleware.NewAPIKeyAuth(cfg.Server.APIKeys, logger); auth != nil {
		opts = append(opts, grpcserver.WithAuth(auth))
	}

	gs, err := grpcserver.NewServer(cfg.GRPC, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc server: %w", err)
	}
	grpcserver.NewNLUServer(rt.Service).Register(gs)
	gs.WatchReadiness(ctx, rt, cfg.GRPC.HealthInterval)
	go func() { errCh <- gs.Start() }()

	logger.Info("grpc server enabled",
		logging.String("addr", gs.Addr()),
		logging.Bool("reflection", cfg.GRPC.Reflection))
	return gs, nil
}

// watchConfig applies the reloadable settings on every config file write:
// log level and rate limits. Everything else needs a restart.
func watchConfig(path string, logger logging.Logger, limiter *middleware.RateLimiter) {
	err := config.Watch(path, func(next *config.Config) {
		if lc, ok := logger.(logging.LevelController); ok && lc.Level() != next.Log.Level {
			lc.SetLevel(next.Log.Level)
			logger.Info("log level changed", logging.String("level", next.Log.Level))
		}
		if limiter != nil && next.RateLimit.Enabled {
			rps, burst := limiter.Limits()
			if rps != next.RateLimit.RequestsPerSecond || burst != next.RateLimit.Burst {
				limiter.SetLimits(next.RateLimit.RequestsPerSecond, next.RateLimit.Burst)
				logger.Info("rate limits changed",
					logging.Float64("rps", next.RateLimit.RequestsPerSecond),
					logging.Int("burst", next.RateLimit.Burst))
			}
		}
	}, func(err error) {
		logger.Warn("config reload rejected", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}

//Personal.AI order the ending
