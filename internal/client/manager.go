package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/averycrespi/annols/pkg/types"
)

// SymbolQuerier answers workspace/symbol for a workspace root.
type SymbolQuerier interface {
	QuerySymbols(ctx context.Context, root, query string) ([]types.SymbolInformation, error)
}

// Factory builds an upstream client. It exists so tests can swap the process.
type Factory func() types.Client

// Manager manages the upstream client lifecycle and answers symbol queries
// through it, falling back to a local provider when the upstream fails.
type Manager struct {
	factory     Factory
	fallback    SymbolQuerier
	logger      *slog.Logger
	client      types.Client
	root        string
	initialized bool
	mu          sync.RWMutex
}

// NewManager creates a manager for cfg. With no command configured every
// query goes to fallback.
func NewManager(cfg types.UpstreamConfig, fallback SymbolQuerier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var factory Factory
	if cfg.Command != "" {
		factory = func() types.Client {
			return NewLanguageServerClient(cfg.Command, cfg.Args, logger)
		}
	}
	return NewManagerWithFactory(factory, fallback, logger)
}

// NewManagerWithFactory creates a manager using factory for the upstream client.
// A nil factory disables the upstream.
func NewManagerWithFactory(factory Factory, fallback SymbolQuerier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:  factory,
		fallback: fallback,
		logger:   logger,
	}
}

// Initialize starts the upstream client for workspaceRoot. It is a no-op when
// already initialized or when no upstream is configured.
func (m *Manager) Initialize(ctx context.Context, workspaceRoot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized || m.factory == nil {
		return nil
	}
	m.logger.Info("Initializing upstream language server", "workspace", workspaceRoot)

	client := m.factory()
	if err := client.Start(ctx, workspaceRoot); err != nil {
		return fmt.Errorf("failed to start upstream client: %w", err)
	}

	m.client = client
	m.root = workspaceRoot
	m.initialized = true
	return nil
}

// QuerySymbols answers from the upstream when it is running for root,
// otherwise from the fallback provider.
func (m *Manager) QuerySymbols(ctx context.Context, root, query string) ([]types.SymbolInformation, error) {
	m.mu.RLock()
	client := m.client
	sameRoot := m.root == root
	m.mu.RUnlock()

	if client != nil && sameRoot {
		symbols, err := client.FuzzyFindSymbol(ctx, query)
		if err == nil {
			return symbols, nil
		}
		if m.fallback == nil {
			return nil, err
		}
		m.logger.Warn("Upstream symbol query failed, using local index", "query", query, "error", err)
	}

	if m.fallback == nil {
		return nil, types.Errorf(types.KindUpstreamUnavailable, "workspace/symbol", "no symbol provider available")
	}
	return m.fallback.QuerySymbols(ctx, root, query)
}

// Shutdown stops the upstream client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil
	}

	if err := m.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to shutdown upstream client: %w", err)
	}

	m.initialized = false
	m.client = nil

	return nil
}

// IsInitialized returns whether the upstream client is running.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.initialized
}
