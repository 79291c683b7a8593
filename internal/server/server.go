// ============================================================================
// gRPC Server - Planner service
// ============================================================================
//
// Package: internal/server
// File: server.go
// Purpose: Exposes Train and Plan over gRPC with the JSON codec, plus the
//          standard health service.
//
// Error mapping:
//   invalid request / argument     -> InvalidArgument
//   policy not found               -> NotFound
//   corrupted policy               -> DataLoss
//   context canceled / deadline    -> Canceled / DeadlineExceeded
//   anything else                  -> Internal
//
// ============================================================================

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ChuLiYu/decision-engine/internal/engine"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
)

// Service is what the gRPC layer needs from the planner.
type Service interface {
	Train(ctx context.Context, req planner.TrainRequest) (planner.TrainResult, error)
	Plan(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error)
}

// Server implements PlannerServer on top of a Service.
type Server struct {
	svc    Service
	logger *slog.Logger

	grpc   *grpc.Server
	health *health.Server
}

// Option customizes a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Server with the Planner and health services registered.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: slog.Default(),
		health: health.NewServer(),
	}
	for _, o := range opts {
		o(s)
	}

	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	RegisterPlannerServer(s.grpc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", "addr", lis.Addr().String())
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop drains in-flight calls, forcing the stop when ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, forcing")
		s.grpc.Stop()
		<-done
	}
}

func (s *Server) Train(ctx context.Context, req *planner.TrainRequest) (*planner.TrainResult, error) {
	result, err := s.svc.Train(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &result, nil
}

func (s *Server) Plan(ctx context.Context, req *planner.PlanRequest) (*planner.PlanResult, error) {
	result, err := s.svc.Plan(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &result, nil
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"elapsed", time.Since(start),
	)
	return resp, err
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, policystore.ErrPolicyNotFound):
		code = codes.NotFound
	case errors.Is(err, policystore.ErrCorruptedPolicy):
		code = codes.DataLoss
	case errors.Is(err, planner.ErrInvalidRequest),
		errors.Is(err, policystore.ErrInvalidArgument),
		errors.Is(err, engine.ErrDecisionSpaceTooLarge),
		errors.Is(err, engine.ErrInvalidJobCount):
		code = codes.InvalidArgument
	}
	return status.Error(code, err.Error())
}
