package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/averycrespi/annols/internal/client"
	"github.com/averycrespi/annols/internal/lsp"
	"github.com/averycrespi/annols/internal/scanner"
	"github.com/averycrespi/annols/internal/search"
	"github.com/averycrespi/annols/internal/symbols"
	"github.com/averycrespi/annols/internal/workspace"
	"github.com/averycrespi/annols/pkg/types"
)

var _ types.Server = &lsp.Server{}

// Stack holds the components shared by every protocol server of one process
type Stack struct {
	config  types.Config
	logger  *slog.Logger
	parsers *scanner.ParserPool
	walker  *workspace.Walker
	local   *symbols.LocalIndex
}

// NewStack creates the parser pool, workspace walker and local symbol index for config
func NewStack(config types.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyDefaults()

	parsers, err := scanner.NewParserPool(config.Search.ParserMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser pool: %w", err)
	}
	logger.Debug("Created parser pool", "mode", parsers.Mode(), "workers", config.Search.Workers)
	walker := workspace.NewWalker(config.Search, logger)

	return &Stack{
		config:  config,
		logger:  logger,
		parsers: parsers,
		walker:  walker,
		local:   symbols.NewLocalIndex(walker, parsers, config.Search.Workers, logger),
	}, nil
}

// Config returns the configuration the stack was built from
func (st *Stack) Config() types.Config {
	return st.config
}

// Close releases the parser pool
func (st *Stack) Close() {
	st.parsers.Close()
}

// NewLanguageServer creates a protocol server for one connection. Each server
// owns its upstream symbol manager, started on initialize and stopped on shutdown.
func (st *Stack) NewLanguageServer(r io.Reader, w io.Writer) *lsp.Server {
	manager := client.NewManager(st.config.Upstream, st.local, st.logger)

	srv := lsp.NewServer(r, w, lsp.Options{
		Protocol: st.config.Protocol,
		Hooks: lsp.Hooks{
			OnInitialize: manager.Initialize,
			OnShutdown:   manager.Shutdown,
		},
		WorkspaceRoot: st.config.WorkspaceRoot,
		Logger:        st.logger,
	})
	st.wire(srv, manager)
	return srv
}

// Backend is an in-process protocol server answering its own symbol queries.
type Backend struct {
	Server   *lsp.Server
	Searcher *search.Orchestrator
	Symbols  *symbols.Client
	manager  *client.Manager
}

// Upstream reports whether symbol queries reach an external language server
// rather than the local index.
func (b *Backend) Upstream() bool {
	return b.manager.IsInitialized()
}

// Stop shuts down the upstream symbol manager.
func (b *Backend) Stop(ctx context.Context) error {
	return b.manager.Shutdown(ctx)
}

// NewBackend creates a Ready in-process server rooted at root. An unusable
// upstream is logged and the local index answers instead.
func (st *Stack) NewBackend(ctx context.Context, root string) (*Backend, error) {
	if err := workspace.ValidateRoot(root); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, types.NewError(types.KindInvalidArgument, "backend", err)
	}

	manager := client.NewManager(st.config.Upstream, st.local, st.logger)
	initCtx, cancel := context.WithTimeout(ctx, st.config.Protocol.InitializeTimeout())
	defer cancel()
	if err := manager.Initialize(initCtx, abs); err != nil {
		st.logger.Warn("Upstream language server unavailable, using local symbol index", "error", err)
	}
	st.logger.Debug("Symbol provider selected", "root", abs, "upstream", manager.IsInitialized())

	srv := lsp.NewInProcess(abs, lsp.Options{
		Protocol:      st.config.Protocol,
		WorkspaceRoot: abs,
		Logger:        st.logger,
	})
	orchestrator, symbolClient := st.wire(srv, manager)

	return &Backend{
		Server:   srv,
		Searcher: orchestrator,
		Symbols:  symbolClient,
		manager:  manager,
	}, nil
}

// wire closes the loop between srv and the search pipeline: symbol queries
// reach the manager through srv, and searches consult srv through its loopback.
func (st *Stack) wire(srv *lsp.Server, manager *client.Manager) (*search.Orchestrator, *symbols.Client) {
	srv.SetSymbolQuerier(manager)

	symbolClient := symbols.NewClient(srv.Loopback(), st.logger)
	orchestrator := search.New(symbolClient, st.walker, st.parsers, st.config.Search, st.logger)
	srv.SetSearcher(orchestrator)

	return orchestrator, symbolClient
}
