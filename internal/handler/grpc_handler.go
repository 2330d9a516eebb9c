package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
)

// GRPCServer serves the standard health service and server reflection.
type GRPCServer struct {
	*grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewGRPCServer creates a gRPC server with logging and recovery interceptors
func NewGRPCServer(log *logger.Logger) *GRPCServer {
	l := log.Logger.With().Str("handler", "grpc").Logger()

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(l),
		loggingInterceptor(l),
	))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv) // Enable reflection for debugging

	return &GRPCServer{Server: srv, health: hs, logger: l}
}

// SetServing flips the overall health status.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

// Shutdown reports NOT_SERVING to watchers and drains in-flight calls.
func (s *GRPCServer) Shutdown() {
	s.logger.Info().Msg("Stopping gRPC server")
	s.health.Shutdown()
	s.GracefulStop()
}

func loggingInterceptor(l zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		err = mapErrorToGRPC(err)

		ev := l.Debug()
		if status.Code(err) == codes.Internal {
			ev = l.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call")
		return resp, err
	}
}

func recoveryInterceptor(l zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				l.Error().
					Str("method", info.FullMethod).
					Str("panic", fmt.Sprint(rec)).
					Msg("Recovered from panic")
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// mapErrorToGRPC converts application errors to gRPC status errors. Errors
// that already carry a status pass through.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	msg := errors.PublicMessage(err)
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
