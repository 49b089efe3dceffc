package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codebase-context/internal/app"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/pkg/types"
)

// Service is the application surface the tools call into
type Service interface {
	Retrieve(ctx context.Context, query, directory string) ([]types.ContextItem, error)
	Index(ctx context.Context, req app.IndexRequest) (*app.IndexResult, error)
	Status(ctx context.Context, path string) (*app.Status, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	service Service
	logger  *logging.Logger
}

// NewServer creates a new MCP server instance
func NewServer(service Service, version string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			app.Name,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		service: service,
		logger:  logger,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve runs the server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(retrieveContextTool(), s.handleRetrieveContext)
	s.mcp.AddTool(indexWorkspaceTool(), s.handleIndexWorkspace)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
