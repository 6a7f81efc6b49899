package transportgrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TokenServiceClient calls the token service over an established connection.
type TokenServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTokenServiceClient wraps cc.
func NewTokenServiceClient(cc grpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

func (c *TokenServiceClient) Validate(ctx context.Context, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TokenServiceClient) GetJWKS(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, GetJWKSMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// ListSessions requires a bearer token in the outgoing metadata.
func (c *TokenServiceClient) ListSessions(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListSessionsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeSession requires a bearer token in the outgoing metadata.
func (c *TokenServiceClient) RevokeSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, RevokeSessionMethod, wrapperspb.String(sessionID), &emptypb.Empty{}, opts...)
}
