package control

import (
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/supervisor"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StatusHandler publishes each role as a grpc health service: SERVING while
// its child runs, NOT_SERVING otherwise.
type StatusHandler struct {
	health *health.Server
	logger logging.Logger
}

func NewStatusHandler(roles []string, logger logging.Logger) *StatusHandler {
	h := &StatusHandler{
		health: health.NewServer(),
		logger: logger,
	}
	for _, role := range roles {
		h.health.SetServingStatus(role, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

func (h *StatusHandler) Report(role string, state supervisor.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == supervisor.StateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(role, status)
	h.logger.Debugf("Role status, role: %s, state: %s, health: %s", role, state, status)
}

// Shutdown flips every service to NOT_SERVING.
func (h *StatusHandler) Shutdown() {
	h.health.Shutdown()
}

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler *StatusHandler) {
	healthpb.RegisterHealthServer(grpcServerRegistrar, handler.health)
}
