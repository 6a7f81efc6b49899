package transportgrpc

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/grpc/interceptors"
)

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Service        LifecycleService
	JWKS           JWKSProvider
	Metrics        *interceptors.GRPCMetrics
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
}

// Server bundles the gRPC server with its health service so callers can flip
// serving status on shutdown.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// publicMethods are reachable without a bearer token.
var publicMethods = []string{
	ValidateMethod,
	GetJWKSMethod,
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_List_FullMethodName,
}

// NewServer wires gRPC services with authentication enforced through interceptors.
func NewServer(deps ServerDependencies) (*Server, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	authInterceptor := interceptors.NewAuthInterceptor(deps.Service, interceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: publicMethods,
	})

	server := grpc.NewServer(
		interceptors.TracingServerOption(interceptors.TracingOptions{TracerProvider: deps.TracerProvider}),
		grpc.ChainUnaryInterceptor(
			deps.Metrics.UnaryServerInterceptor(),
			authInterceptor.UnaryServerInterceptor(),
		),
	)

	RegisterTokenServiceServer(server, NewTokenServer(deps.Service, deps.JWKS, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)

	return &Server{Server: server, Health: healthServer}, nil
}
