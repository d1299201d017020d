package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

const Version = "0.1.0"

type Server struct {
	ports  *Ports
	server *server.MCPServer
	logger *slog.Logger
}

func NewServer(p *Ports, logger *slog.Logger) (*Server, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ports: p,
		server: server.NewMCPServer("docintel", Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Serve speaks JSON-RPC over in/out until ctx is cancelled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp_server_started", "tenant_id", s.ports.TenantID)
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}
