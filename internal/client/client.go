package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/averycrespi/annols/internal/transport"
	"github.com/averycrespi/annols/pkg/project"
	"github.com/averycrespi/annols/pkg/types"
)

const (
	stopTimeout = 5 * time.Second
)

var _ types.Client = &LanguageServerClient{}

// LanguageServerClient drives an external language server (jdtls or any
// other server speaking LSP over stdio) and uses it for workspace/symbol.
type LanguageServerClient struct {
	command   string
	args      []string
	logger    *slog.Logger
	cmd       *exec.Cmd
	transport types.Transport
	exited    chan struct{}
}

// NewLanguageServerClient creates a client for the given server command.
func NewLanguageServerClient(command string, args []string, logger *slog.Logger) *LanguageServerClient {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("upstream", command)
	logger.Debug("Creating upstream language server client", "args", args)

	return &LanguageServerClient{
		command: command,
		args:    args,
		logger:  logger,
	}
}

// Start launches the server process and runs the initialize handshake.
func (c *LanguageServerClient) Start(ctx context.Context, workspaceRoot string) error {
	if c.command == "" {
		return types.Errorf(types.KindUpstreamUnavailable, "start upstream", "no upstream command configured")
	}
	c.logger.Debug("Starting upstream language server", "workspace_root", workspaceRoot)

	// The process must outlive the start context.
	c.cmd = exec.Command(c.command, c.args...)
	c.cmd.Dir = workspaceRoot

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	c.transport = transport.NewJsonRpcTransport(stdin, stdout)

	if err := c.cmd.Start(); err != nil {
		return types.NewError(types.KindUpstreamUnavailable, "start upstream", err)
	}
	c.logger.Debug("Upstream process started", "pid", c.cmd.Process.Pid)

	c.exited = make(chan struct{})
	go c.drainStderr(stderr)
	go func() {
		err := c.cmd.Wait()
		c.logger.Debug("Upstream process exited", "error", err)
		close(c.exited)
	}()

	if err := c.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	rootURI := types.PathToURI(workspaceRoot)
	c.logger.Debug("Initializing upstream language server", "root_uri", rootURI)
	if err := c.initialize(ctx, rootURI); err != nil {
		c.kill()
		return types.NewError(types.KindUpstreamUnavailable, "initialize upstream", err)
	}
	c.logger.Info("Upstream language server ready")

	return nil
}

func (c *LanguageServerClient) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Debug("Upstream stderr", "line", scanner.Text())
	}
}

func (c *LanguageServerClient) initialize(ctx context.Context, rootURI string) error {
	params := map[string]any{
		"processId": nil,
		"clientInfo": map[string]any{
			"name":    project.Name,
			"version": project.Version,
		},
		"rootUri": rootURI,
		"capabilities": map[string]any{
			"workspace": map[string]any{
				"symbol": map[string]any{
					"dynamicRegistration": false,
				},
			},
		},
	}

	_, err := c.transport.SendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("failed to send initialization request: %w", err)
	}

	if err := c.transport.SendNotification("initialized", map[string]any{}); err != nil {
		return fmt.Errorf("failed to send initialization notification: %w", err)
	}

	return nil
}

// Stop asks the server to shut down and exit, then reaps the process.
func (c *LanguageServerClient) Stop(ctx context.Context) error {
	if c.transport == nil {
		return nil
	}

	var errs []error
	if _, err := c.transport.SendRequest(ctx, "shutdown", nil); err != nil {
		errs = append(errs, fmt.Errorf("failed to send JSON-RPC shutdown request: %w", err))
	}

	if err := c.transport.SendNotification("exit", nil); err != nil {
		errs = append(errs, fmt.Errorf("failed to send JSON-RPC exit notification: %w", err))
	}

	if err := c.transport.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop transport: %w", err))
	}

	select {
	case <-c.exited:
	case <-time.After(stopTimeout):
		c.logger.Warn("Upstream did not exit in time, killing it")
		c.kill()
	}

	return errors.Join(errs...)
}

func (c *LanguageServerClient) kill() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	if err := c.cmd.Process.Kill(); err != nil {
		c.logger.Debug("Failed to kill upstream process", "error", err)
	}
	if c.exited != nil {
		<-c.exited
	}
}

// FuzzyFindSymbol sends workspace/symbol. URI-only locations come back
// with a zero range.
func (c *LanguageServerClient) FuzzyFindSymbol(ctx context.Context, query string) ([]types.SymbolInformation, error) {
	c.logger.Debug("Fuzzy finding symbols", "query", query)

	params := map[string]any{
		"query": query,
	}

	response, err := c.transport.SendRequest(ctx, "workspace/symbol", params)
	if err != nil {
		return nil, types.NewError(types.KindUpstreamUnavailable, "workspace/symbol", err)
	}

	// LSP workspace/symbol response can be null, SymbolInformation[] or WorkspaceSymbol[]
	if len(response) == 0 || string(response) == "null" {
		c.logger.Debug("No symbols found", "query", query)
		return []types.SymbolInformation{}, nil
	}

	var raw []types.WorkspaceSymbol
	if err := json.Unmarshal(response, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workspace symbol response: %w", err)
	}

	symbols := make([]types.SymbolInformation, 0, len(raw))
	for _, sym := range raw {
		var loc types.Location
		if len(sym.Location) > 0 {
			if err := json.Unmarshal(sym.Location, &loc); err != nil {
				return nil, fmt.Errorf("failed to unmarshal symbol location: %w", err)
			}
		}
		symbols = append(symbols, types.SymbolInformation{
			Name:          sym.Name,
			Kind:          sym.Kind,
			Location:      loc,
			ContainerName: sym.ContainerName,
		})
	}

	c.logger.Debug("Found symbols", "count", len(symbols), "query", query)
	return symbols, nil
}
