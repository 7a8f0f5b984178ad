// Package grpc serves the NLU operations over gRPC next to the HTTP API. The
// service speaks JSON through a registered codec so that its messages are
// the same structs the HTTP API encodes. It also exposes grpc.health.v1,
// fed by the runtime readiness report.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
)

const (
	defaultMaxRecvMsgSize  = 4 << 20
	defaultGracefulTimeout = 10 * time.Second
)

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               time.Second,
}

var defaultKeepalivePolicy = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

// Metadata keys read from incoming calls.
const (
	mdAPIKey        = "x-api-key"
	mdAuthorization = "authorization"
	mdRequestID     = "x-request-id"
)

// Validator is implemented by requests that check themselves before the
// handler runs.
type Validator interface {
	Validate() error
}

// Recorder receives one observation per finished unary call.
// prometheus.NLUMetrics implements it.
type Recorder interface {
	RecordGRPCRequest(service, method, code string, duration time.Duration)
}

// KeyValidator authenticates API keys. middleware.APIKeyAuth implements it.
type KeyValidator interface {
	Valid(key string) bool
}

// Option configures the gRPC Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	recorder        Recorder
	auth            KeyValidator
	tlsConfig       *tls.Config
	maxRecvMsgSize  int
	gracefulTimeout time.Duration
	reflection      bool
	listener        net.Listener
}

// WithLogger sets the logger for the gRPC server.
func WithLogger(l logging.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithRecorder records per-method request metrics.
func WithRecorder(r Recorder) Option {
	return func(o *serverOptions) { o.recorder = r }
}

// WithAuth requires a valid API key on every call except health checks.
func WithAuth(v KeyValidator) Option {
	return func(o *serverOptions) { o.auth = v }
}

// WithTLSConfig sets TLS configuration for the gRPC server.
func WithTLSConfig(tc *tls.Config) Option {
	return func(o *serverOptions) { o.tlsConfig = tc }
}

// WithListener serves on ln instead of binding the configured address.
func WithListener(ln net.Listener) Option {
	return func(o *serverOptions) { o.listener = ln }
}

// Server wraps a gRPC server with lifecycle management, interceptors,
// health checking and graceful shutdown.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	opts         *serverOptions
	healthServer *health.Server
	services     []string
	mu           sync.Mutex
	started      bool
}

// NewServer binds the listener, assembles the interceptor chain and
// registers the health service.
func NewServer(cfg config.GRPCConfig, opts ...Option) (*Server, error) {
	sopts := &serverOptions{
		maxRecvMsgSize:  cfg.MaxRecvMsgSize,
		gracefulTimeout: cfg.GracefulTimeout,
		reflection:      cfg.Reflection,
	}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.maxRecvMsgSize <= 0 {
		sopts.maxRecvMsgSize = defaultMaxRecvMsgSize
	}
	if sopts.gracefulTimeout <= 0 {
		sopts.gracefulTimeout = defaultGracefulTimeout
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}
	sopts.logger = sopts.logger.Named("grpc")

	lis := sopts.listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
		}
	}

	// recovery is outermost; status conversion is innermost so the observer
	// sees final codes.
	grpcOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(sopts.maxRecvMsgSize),
		grpc.KeepaliveParams(defaultKeepaliveParams),
		grpc.KeepaliveEnforcementPolicy(defaultKeepalivePolicy),
		grpc.ChainUnaryInterceptor(
			recoverUnary(sopts.logger),
			tagUnary,
			observeUnary(sopts.logger, sopts.recorder),
			authUnary(sopts.auth, sopts.logger),
			validateUnary,
			statusUnary,
		),
		grpc.ChainStreamInterceptor(
			recoverStream(sopts.logger),
			authStream(sopts.auth),
		),
	}
	if sopts.tlsConfig != nil {
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(sopts.tlsConfig)))
	}

	gs := grpc.NewServer(grpcOpts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if sopts.reflection {
		reflection.Register(gs)
		sopts.logger.Info("grpc reflection service registered")
	}

	return &Server{
		grpcServer:   gs,
		listener:     lis,
		opts:         sopts,
		healthServer: hs,
	}, nil
}

// RegisterService registers a service implementation. Must be called before
// Start.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
	s.healthServer.SetServingStatus(desc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.mu.Lock()
	s.services = append(s.services, desc.ServiceName)
	s.mu.Unlock()
	s.opts.logger.Info("grpc service registered", logging.String("service", desc.ServiceName))
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.opts.logger.Info("grpc server listening", logging.String("addr", s.listener.Addr().String()))
	if err := s.grpcServer.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING, then drains in-flight calls within
// the graceful timeout and forces the rest.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return s.listener.Close()
	}

	s.opts.logger.Info("grpc server stopping")
	s.healthServer.Shutdown()

	gracefulCtx, cancel := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.opts.logger.Info("grpc server stopped gracefully")
	case <-gracefulCtx.Done():
		s.opts.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr returns the listening address, useful with port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

//Personal.AI order the ending
