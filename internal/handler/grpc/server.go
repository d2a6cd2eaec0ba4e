package hgrpc

import (
	"github.com/Izanagi078/Final-Work/pkg/jwtutil"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer builds the gRPC server with the ledger service, the standard
// health service and reflection registered. A nil tokens manager disables
// bearer authentication.
func NewServer(h *LedgerHandler, tokens *jwtutil.Manager) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{RecoveryInterceptor(), LoggingInterceptor()}
	if tokens != nil {
		interceptors = append(interceptors, AuthInterceptor(tokens))
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterLedgerServiceServer(s, h)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(s)
	return s, hs
}
