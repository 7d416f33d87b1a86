package grpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/metrics"
)

const serviceTokenHeader = "x-service-token"

const (
	reasonMissingToken = "missing_service_token"
	reasonInvalidToken = "invalid_service_token"
)

// serviceAuth guards the internal query API. End users never call it
// directly; the caller they act for travels in the request body.
type serviceAuth struct {
	token   []byte
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewServiceAuthUnaryInterceptor admits calls whose x-service-token matches
// token. Refusals are logged and counted per method.
func NewServiceAuthUnaryInterceptor(token string, m *metrics.Metrics, logger *slog.Logger) (grpc.UnaryServerInterceptor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("service auth token required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	a := &serviceAuth{token: []byte(token), metrics: m, logger: logger}
	return a.intercept, nil
}

func (a *serviceAuth) intercept(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	presented, ok := incomingServiceToken(ctx)
	switch {
	case !ok:
		return nil, a.reject(info.FullMethod, codes.Unauthenticated, reasonMissingToken)
	case subtle.ConstantTimeCompare(presented, a.token) != 1:
		return nil, a.reject(info.FullMethod, codes.PermissionDenied, reasonInvalidToken)
	}
	return handler(ctx, req)
}

func (a *serviceAuth) reject(method string, code codes.Code, reason string) error {
	a.metrics.ServiceAuthRejected(method, reason)
	a.logger.Warn("grpc call refused", "method", method, "reason", reason)
	return status.Error(code, reason)
}

// incomingServiceToken reports false when no non-blank token was sent.
func incomingServiceToken(ctx context.Context) ([]byte, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, false
	}
	for _, value := range md.Get(serviceTokenHeader) {
		if value = strings.TrimSpace(value); value != "" {
			return []byte(value), true
		}
	}
	return nil, false
}
