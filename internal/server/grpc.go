// Package server builds the HTTP API router and the ops gRPC server.
package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	healthhandler "nova-workspace/backend/internal/health/handler"
	"nova-workspace/backend/internal/logging"
)

// GRPCDeps holds the dependencies of the ops gRPC server.
type GRPCDeps struct {
	// Health answers grpc.health.v1.Health. If nil, a health server with no checks is registered.
	Health *healthhandler.Server
	// Reflection registers the reflection service (for grpcurl). Enable outside production only.
	Reflection bool
	Logger     *zap.Logger
}

// RegisterServices registers the ops gRPC services with the given server.
//
//   - grpc.health.v1.Health            → internal/health/handler
//   - grpc.reflection (when enabled)   → google.golang.org/grpc/reflection
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	h := deps.Health
	if h == nil {
		h = healthhandler.NewServer(nil, nil, deps.Logger)
	}
	healthpb.RegisterHealthServer(s, h)
	if deps.Reflection {
		if rs, ok := s.(reflection.GRPCServer); ok {
			reflection.Register(rs)
		}
	}
}

// NewGRPCServer returns a gRPC server with OpenTelemetry instrumentation, request logging and the
// ops services registered.
func NewGRPCServer(deps GRPCDeps) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LoggingUnary(deps.Logger)),
	)
	RegisterServices(s, deps)
	return s
}

// LoggingUnary returns a unary interceptor that logs each RPC with its status code and latency.
// Health checks log at debug level.
func LoggingUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	logger = logging.OrNop(logger)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		fields = append(fields, logging.TraceFields(ctx)...)
		if err != nil {
			logger.Warn("grpc request", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc request", fields...)
		}
		return resp, err
	}
}
