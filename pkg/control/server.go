package control

import (
	"context"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
	corelogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

// Server is the optional gRPC control endpoint: the core ping service plus
// per-role health.
type Server struct {
	server  corecontrol.Server
	handler *StatusHandler
	logger  logging.Logger
}

func NewServer(port int, handler *StatusHandler, logger logging.Logger) (*Server, error) {
	coreLogger := corelogging.NewLogger("module: hsu-core , ", corelogging.LogFuncs{
		Debugf: logger.Debugf,
		Infof:  logger.Infof,
		Warnf:  logger.Warnf,
		Errorf: logger.Errorf,
	})

	server, err := corecontrol.NewServer(corecontrol.ServerOptions{Port: port}, coreLogger)
	if err != nil {
		return nil, errors.NewInternalError("failed to create control server", err).WithContext("port", port)
	}

	corecontrol.RegisterGRPCServerHandler(server.GRPC(), coredomain.NewDefaultHandler(coreLogger), coreLogger)
	RegisterGRPCServerHandler(server.GRPC(), handler)

	return &Server{
		server:  server,
		handler: handler,
		logger:  logger,
	}, nil
}

func (s *Server) Start(ctx context.Context) {
	s.logger.Infof("Starting control server...")
	s.server.Start(ctx)
}

func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Infof("Stopping control server...")
	s.handler.Shutdown()
	s.server.Shutdown(ctx)
}

// Close releases the port of a server that was never started. The listener is
// only closed by a serving gRPC server, so it is served and stopped at once.
func (s *Server) Close(ctx context.Context) {
	s.server.Start(ctx)
	s.Shutdown(ctx)
}
