package transportgrpc

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/grpc/interceptors"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

// LifecycleService is the slice of the auth service exposed over gRPC.
type LifecycleService interface {
	interceptors.Authenticator
	Validate(ctx context.Context, token string) usecase.ValidationResult
	ListSessions(ctx context.Context, claims domain.TokenClaims) ([]domain.SessionView, error)
	RevokeSession(ctx context.Context, claims domain.TokenClaims, sessionID string) error
}

// JWKSProvider renders the public verification keys.
type JWKSProvider interface {
	JWKS() ([]byte, error)
}

// TokenServer implements the tokens.v1.TokenService gRPC contract.
type TokenServer struct {
	service LifecycleService
	jwks    JWKSProvider
	logger  *zap.Logger
}

// NewTokenServer constructs a gRPC token server.
func NewTokenServer(service LifecycleService, jwks JWKSProvider, logger *zap.Logger) *TokenServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenServer{service: service, jwks: jwks, logger: logger}
}

// Validate checks any token and reports the outcome in-band, mirroring the
// HTTP validate endpoint.
func (s *TokenServer) Validate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		return toStruct(map[string]any{"valid": false, "error": "token is required"})
	}

	result := s.service.Validate(ctx, token)
	if result.Err != nil {
		if st := interceptors.StatusFromError(result.Err); status.Code(st) == codes.Unavailable || status.Code(st) == codes.Internal {
			return nil, st
		}
		return toStruct(map[string]any{"valid": false, "error": result.Err.Error()})
	}

	return toStruct(map[string]any{"valid": true, "payload": result.Payload})
}

// GetJWKS returns the JSON Web Key Set for offline JWT validation.
func (s *TokenServer) GetJWKS(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s.jwks == nil {
		return nil, status.Error(codes.Unavailable, "jwks not available")
	}

	jwksJSON, err := s.jwks.JWKS()
	if err != nil {
		s.logger.Error("failed to generate JWKS", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to generate jwks")
	}

	return wrapperspb.String(string(jwksJSON)), nil
}

// ListSessions returns the caller's active sessions.
func (s *TokenServer) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	claims, ok := interceptors.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	sessions, err := s.service.ListSessions(ctx, claims)
	if err != nil {
		return nil, interceptors.StatusFromError(err)
	}

	return toStruct(map[string]any{"sessions": sessions, "total": len(sessions)})
}

// RevokeSession revokes one of the caller's other sessions.
func (s *TokenServer) RevokeSession(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	claims, ok := interceptors.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	if err := s.service.RevokeSession(ctx, claims, req.GetValue()); err != nil {
		return nil, interceptors.StatusFromError(err)
	}
	return &emptypb.Empty{}, nil
}

// toStruct round-trips through JSON so struct tags on domain types decide
// field names.
func toStruct(value any) (*structpb.Struct, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

var _ TokenServiceServer = (*TokenServer)(nil)
