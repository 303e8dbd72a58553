package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/averycrespi/annols/internal/tools"
	"github.com/averycrespi/annols/pkg/project"
	"github.com/averycrespi/annols/pkg/types"

	"github.com/mark3labs/mcp-go/server"
)

var _ types.Server = &MCPServer{}

// MCPServer exposes the annotation search as MCP tools over stdio
type MCPServer struct {
	mcpServer *server.MCPServer
	stack     *Stack
	in        io.Reader
	out       io.Writer
	backend   *Backend
}

// NewMCPServer creates a new MCP server reading from in and writing to out
func NewMCPServer(stack *Stack, in io.Reader, out io.Writer) *MCPServer {
	mcpServer := server.NewMCPServer(project.Name, project.Version,
		server.WithToolCapabilities(false),
	)

	return &MCPServer{
		mcpServer: mcpServer,
		stack:     stack,
		in:        in,
		out:       out,
	}
}

// Serve starts the backend and serves MCP requests until ctx is done or input ends
func (s *MCPServer) Serve(ctx context.Context) error {
	s.stack.logger.Info("Starting MCP server", "workspace_root", s.stack.config.WorkspaceRoot)

	if err := s.start(ctx); err != nil {
		return err
	}
	defer s.stop()

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.stack.logger.Handler(), slog.LevelError))

	if err := stdio.Listen(ctx, s.in, s.out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve MCP server: %w", err)
	}

	return nil
}

func (s *MCPServer) start(ctx context.Context) error {
	backend, err := s.stack.NewBackend(ctx, s.stack.config.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("failed to start backend: %w", err)
	}
	s.backend = backend

	s.registerTools()
	return nil
}

func (s *MCPServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.stack.config.Protocol.ShutdownTimeout())
	defer cancel()
	if err := s.backend.Stop(ctx); err != nil {
		s.stack.logger.Warn("Failed to stop backend", "error", err)
	}
}

func (s *MCPServer) registerTools() {
	config := s.stack.config
	config.WorkspaceRoot = s.backend.Server.Root()

	for _, tool := range []tools.Tool{
		tools.NewFindAnnotationUsagesTool(s.backend.Searcher, config),
		tools.NewFindSymbolDefinitionsByNameTool(s.backend.Symbols, config),
	} {
		s.mcpServer.AddTool(tool.GetTool(), tool.Handle)
	}
}
