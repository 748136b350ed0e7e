// Package handler serves readiness over the standard gRPC health protocol and over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"nova-workspace/backend/internal/logging"
	"nova-workspace/backend/internal/platform/httpx"
)

// Pinger checks the store. Satisfied by *sql.DB and *memstore.Store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the bootstrap policy compiles. Satisfied by *engine.OPAEvaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health for readiness/liveness.
// Service names other than "" and ServiceName are reported as NOT_FOUND.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger  Pinger
	policy  PolicyChecker
	timeout time.Duration
	logger  *zap.Logger
}

// ServiceName is the service name reported by Check besides the empty overall name.
const ServiceName = "nova.workspace"

// NewServer returns a health Server. Nil checks are skipped.
func NewServer(pinger Pinger, policy PolicyChecker, logger *zap.Logger) *Server {
	return &Server{pinger: pinger, policy: policy, timeout: 2 * time.Second, logger: logging.OrNop(logger)}
}

// Ready runs every configured check and returns the first failure.
func (s *Server) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return err
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Check reports SERVING when Ready succeeds. A failed check is a NOT_SERVING response, not an RPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if err := s.Ready(ctx); err != nil {
		s.logger.Warn("health: not serving", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// ServeHTTP answers GET /healthz with 200 {"status":"ok"} or 503 {"status":"unavailable"}.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	if err := s.Ready(r.Context()); err != nil {
		s.logger.Warn("health: not ready", zap.Error(err))
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
