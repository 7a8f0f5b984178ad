package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
)

// ReadinessChecker reports the readiness of the engine and its dependencies.
type ReadinessChecker interface {
	Readiness(ctx context.Context) *nlu.ReadinessReport
}

// WatchReadiness mirrors checker into grpc.health.v1 every interval until
// ctx ends: the overall ("") status and every registered service follow the
// report's Ready flag. The first check runs immediately.
func (s *Server) WatchReadiness(ctx context.Context, checker ReadinessChecker, interval time.Duration) {
	if checker == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := healthpb.HealthCheckResponse_SERVING
		for {
			if st := s.applyReadiness(ctx, checker, interval); st != last {
				s.opts.logger.Warn("grpc health status changed", logging.String("status", st.String()))
				last = st
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Server) applyReadiness(ctx context.Context, checker ReadinessChecker, timeout time.Duration) healthpb.HealthCheckResponse_ServingStatus {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	report := checker.Readiness(checkCtx)

	st := healthpb.HealthCheckResponse_SERVING
	if report == nil || !report.Ready {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.mu.Lock()
	services := append([]string{""}, s.services...)
	s.mu.Unlock()
	for _, name := range services {
		s.healthServer.SetServingStatus(name, st)
	}
	return st
}

//Personal.AI order the ending
