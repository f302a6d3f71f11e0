package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

type Server struct {
	server   *http.Server
	listener net.Listener
	logger   logging.Logger
}

// NewServer binds the port right away so a busy port is reported before any
// child is spawned.
func NewServer(port int, handler http.Handler, logger logging.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.NewNetworkError("failed to listen", err).WithContext("port", port)
	}
	return &Server{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr is the bound address, useful when port 0 was requested.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Start() {
	s.logger.Infof("Server running on %s", s.Addr())
	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Serve may never have run; the listener is closed either way
	defer s.listener.Close()
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.NewNetworkError("failed to shut down http server", err)
	}
	return nil
}
