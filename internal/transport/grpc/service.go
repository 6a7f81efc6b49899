package transportgrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// TokenServiceName is the fully qualified gRPC service name.
	TokenServiceName = "tokens.v1.TokenService"

	ValidateMethod      = "/" + TokenServiceName + "/Validate"
	GetJWKSMethod       = "/" + TokenServiceName + "/GetJWKS"
	ListSessionsMethod  = "/" + TokenServiceName + "/ListSessions"
	RevokeSessionMethod = "/" + TokenServiceName + "/RevokeSession"
)

// TokenServiceServer is the server API for tokens.v1.TokenService. Messages are
// protobuf well-known types so peers need no generated stubs.
type TokenServiceServer interface {
	Validate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetJWKS(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RevokeSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// RegisterTokenServiceServer registers srv on the gRPC server.
func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&tokenServiceDesc, srv)
}

var tokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Validate",
			Handler: unaryHandler(ValidateMethod, func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} },
				func(s TokenServiceServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
					return s.Validate(ctx, in)
				}),
		},
		{
			MethodName: "GetJWKS",
			Handler: unaryHandler(GetJWKSMethod, func() *emptypb.Empty { return &emptypb.Empty{} },
				func(s TokenServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
					return s.GetJWKS(ctx, in)
				}),
		},
		{
			MethodName: "ListSessions",
			Handler: unaryHandler(ListSessionsMethod, func() *emptypb.Empty { return &emptypb.Empty{} },
				func(s TokenServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
					return s.ListSessions(ctx, in)
				}),
		},
		{
			MethodName: "RevokeSession",
			Handler: unaryHandler(RevokeSessionMethod, func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} },
				func(s TokenServiceServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
					return s.RevokeSession(ctx, in)
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHandler[Req proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(TokenServiceServer, context.Context, Req) (proto.Message, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(TokenServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
