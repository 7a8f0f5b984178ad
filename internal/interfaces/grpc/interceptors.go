package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
)

const (
	healthPrefix     = "/grpc.health.v1.Health/"
	reflectionPrefix = "/grpc.reflection."
)

var errPanic = status.Error(codes.Internal, "internal server error")

// guard turns a panic into errPanic. Call it deferred.
func guard(logger logging.Logger, method string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("grpc panic recovered",
		logging.String("method", method),
		logging.String("panic", fmt.Sprint(r)),
		logging.String("stack", string(debug.Stack())))
	*err = errPanic
}

func recoverUnary(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
		defer guard(logger, info.FullMethod, &err)
		return next(ctx, req)
	}
}

func recoverStream(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer guard(logger, info.FullMethod, &err)
		return next(srv, ss)
	}
}

// tagUnary attaches request metadata, keeping the caller's x-request-id
// and echoing it in the response header.
func tagUnary(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	id := incoming(ctx, mdRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(mdRequestID, id))
	return next(nlu.WithRequestMeta(ctx, nlu.RequestMeta{RequestID: id, Source: nlu.SourceGRPC}), req)
}

// observeUnary logs and records every call except health probes.
func observeUnary(logger logging.Logger, r Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		took := time.Since(start)
		code := status.Code(err)

		if r != nil {
			service, method := splitMethodName(info.FullMethod)
			r.RecordGRPCRequest(service, method, code.String(), took)
		}

		fields := []logging.Field{
			logging.String("method", info.FullMethod),
			logging.String("code", code.String()),
			logging.Duration("duration", took),
			logging.String("request_id", nlu.RequestMetaFrom(ctx).RequestID),
		}
		switch code {
		case codes.OK:
			logger.Debug("grpc request", fields...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			logger.Error("grpc request failed", append(fields, logging.Err(err))...)
		default:
			logger.Info("grpc request rejected", fields...)
		}
		return resp, err
	}
}

func authUnary(v KeyValidator, logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if v != nil && !strings.HasPrefix(info.FullMethod, healthPrefix) {
			if err := checkKey(ctx, v); err != nil {
				if status.Code(err) == codes.PermissionDenied {
					logger.Warn("rejected invalid API key", logging.String("method", info.FullMethod))
				}
				return nil, err
			}
		}
		return next(ctx, req)
	}
}

// authStream leaves health watches and reflection open.
func authStream(v KeyValidator) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		open := strings.HasPrefix(info.FullMethod, healthPrefix) || strings.HasPrefix(info.FullMethod, reflectionPrefix)
		if v != nil && !open {
			if err := checkKey(ss.Context(), v); err != nil {
				return err
			}
		}
		return next(srv, ss)
	}
}

// checkKey accepts x-api-key or a bearer token.
func checkKey(ctx context.Context, v KeyValidator) error {
	key := incoming(ctx, mdAPIKey)
	if key == "" {
		if scheme, token, ok := strings.Cut(incoming(ctx, mdAuthorization), " "); ok && strings.EqualFold(scheme, "bearer") {
			key = strings.TrimSpace(token)
		}
	}
	switch {
	case key == "":
		return status.Error(codes.Unauthenticated, "authentication required")
	case !v.Valid(key):
		return status.Error(codes.PermissionDenied, "invalid API key")
	}
	return nil
}

func validateUnary(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	if v, ok := req.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "validation failed: %s", err)
		}
	}
	return next(ctx, req)
}

func statusUnary(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	resp, err := next(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func incoming(ctx context.Context, key string) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// splitMethodName splits "/pkg.Service/Method" into service and method.
func splitMethodName(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return "unknown", service
	}
	return service, method
}

//Personal.AI order the ending
