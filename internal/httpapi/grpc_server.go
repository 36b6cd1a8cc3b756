package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"filmbase.org/internal/apperr"
	"filmbase.org/internal/auth"
)

// NewGRPCServer builds a gRPC server carrying the standard health service.
// Unary calls get the caller identity and kind-to-code error mapping.
func NewGRPCServer(codec *auth.Codec, hs *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		UnaryIdentityInterceptor(codec),
		UnaryErrorInterceptor(),
	))
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// UnaryIdentityInterceptor reads "authorization: Bearer <token>" from the
// incoming metadata. Invalid or missing tokens leave the context as is.
func UnaryIdentityInterceptor(codec *auth.Codec) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if codec == nil {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		for _, v := range md.Get(strings.ToLower(authHeader)) {
			token, ok := extractBearerToken(v)
			if !ok {
				continue
			}
			if id, ok := codec.Verify(token); ok {
				ctx = auth.ContextWithIdentity(ctx, id)
				break
			}
		}
		return handler(ctx, req)
	}
}

// UnaryErrorInterceptor converts classified errors into gRPC statuses.
func UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return resp, status.Error(codeFor(apperr.KindOf(err)), apperr.MessageOf(err))
	}
}

func codeFor(kind apperr.Kind) codes.Code {
	switch kind {
	case apperr.KindUsernameAlreadyUsed:
		return codes.AlreadyExists
	case apperr.KindEmailAlreadyUsed:
		return codes.AlreadyExists
	case apperr.KindInvalidPassword:
		return codes.InvalidArgument
	case apperr.KindInvalidInput:
		return codes.InvalidArgument
	case apperr.KindNotFound:
		return codes.NotFound
	case apperr.KindUnauthorized:
		return codes.Unauthenticated
	case apperr.KindForbidden:
		return codes.PermissionDenied
	case apperr.KindFatalConfiguration:
		return codes.Internal
	case apperr.KindInternal:
		return codes.Internal
	default:
		return codes.Internal
	}
}

// HealthReporter drives the gRPC health service from the readiness probe.
type HealthReporter struct {
	probe  readinessChecker
	health *health.Server
	logger log.Logger
}

func NewHealthReporter(probe readinessChecker, hs *health.Server, logger log.Logger) *HealthReporter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &HealthReporter{probe: probe, health: hs, logger: logger}
}

// Update runs the probe once and publishes the result for both the
// overall server and the accounts service.
func (h *HealthReporter) Update(ctx context.Context) bool {
	st := healthpb.HealthCheckResponse_SERVING
	ok := true
	if err := h.probe.Check(ctx); err != nil {
		level.Warn(h.logger).Log("msg", "grpc health not serving", "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(serviceName, st)
	return ok
}

// Run updates health every interval until ctx is done, then marks the
// server as shutting down.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		h.Update(ctx)
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
