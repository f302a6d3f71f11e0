package control

import (
	"context"

	"github.com/core-tools/hsu-keeper/pkg/domain"
	"github.com/core-tools/hsu-keeper/pkg/logging"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	grpcClient := healthpb.NewHealthClient(grpcClientConnection)
	return &grpcClientGateway{
		grpcClient: grpcClient,
		logger:     logger,
	}
}

type grpcClientGateway struct {
	grpcClient healthpb.HealthClient
	logger     logging.Logger
}

func (gw *grpcClientGateway) Status(ctx context.Context, role string) (string, error) {
	response, err := gw.grpcClient.Check(ctx, &healthpb.HealthCheckRequest{Service: role})
	if err != nil {
		gw.logger.Errorf("Status client gateway, role: %s, error: %v", role, err)
		return "", err
	}
	gw.logger.Debugf("Status client gateway done, role: %s", role)
	return response.Status.String(), nil
}
