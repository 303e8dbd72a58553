package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/averycrespi/annols/internal/config"
	"github.com/averycrespi/annols/internal/logging"
	"github.com/averycrespi/annols/internal/metrics"
	"github.com/averycrespi/annols/internal/server"
	"github.com/averycrespi/annols/internal/tools"
	"github.com/averycrespi/annols/pkg/project"
	"github.com/averycrespi/annols/pkg/types"
)

// cli holds the persistent flags and the state built from them.
type cli struct {
	configPath    string
	logLevel      string
	logFormat     string
	workspaceRoot string
	metricsAddr   string
	listenAddr    string

	config types.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           project.Name,
		Short:         "Find every usage of a Java annotation in a workspace",
		Long:          "annols is a language server that answers \"find all usages of annotation X\" for Java workspaces.",
		Version:       project.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to the YAML config file (default: ./annols.yaml if present)")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&c.logFormat, "log-format", "", "Log format (text, json)")
	flags.StringVar(&c.workspaceRoot, "workspace-root", "", "Root directory of the Java workspace")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server over stdio or TCP",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}
	serveCmd.Flags().StringVar(&c.listenAddr, "listen", "", "Accept connections on host:port instead of stdio")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server over stdio exposing the annotation search as tools",
		Args:  cobra.NoArgs,
		RunE:  c.runMCP,
	}

	searchCmd := &cobra.Command{
		Use:   "search ANNOTATION [ROOT]",
		Short: "Search a workspace once and print the usages as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  c.runSearch,
	}

	rootCmd.AddCommand(serveCmd, mcpCmd, searchCmd)
	return rootCmd
}

// setup loads the config, applies flag overrides, and builds the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = c.logFormat
	}
	if flags.Changed("workspace-root") {
		cfg.WorkspaceRoot = c.workspaceRoot
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = c.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// stdout belongs to the protocol.
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.config = cfg
	c.logger = logger

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.Metrics.Addr, logger); err != nil {
				logger.Error("Metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}
	return nil
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	stack, err := server.NewStack(c.config, c.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	if c.listenAddr != "" {
		return c.listen(ctx, stack)
	}

	c.logger.Info("Serving language server on stdio", "workspace_root", c.config.WorkspaceRoot)
	srv := stack.NewLanguageServer(os.Stdin, os.Stdout)
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	if code := srv.ExitCode(); code != 0 {
		return exitError(code)
	}
	return nil
}

// listen serves every accepted connection with its own protocol server until ctx is done.
func (c *cli) listen(ctx context.Context, stack *server.Stack) error {
	listener, err := net.Listen("tcp", c.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.listenAddr, err)
	}
	c.logger.Info("Serving language server", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	var g errgroup.Group
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			c.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		g.Go(func() error {
			defer conn.Close()
			logger := c.logger.With("remote_addr", conn.RemoteAddr().String())
			logger.Info("Accepted connection")

			srv := stack.NewLanguageServer(conn, conn)
			if err := srv.Serve(ctx); err != nil {
				logger.Error("Connection failed", "error", err)
			}
			logger.Info("Connection closed", "exit_code", srv.ExitCode())
			return nil
		})
	}
	return g.Wait()
}

func (c *cli) runMCP(cmd *cobra.Command, _ []string) error {
	stack, err := server.NewStack(c.config, c.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	return server.NewMCPServer(stack, os.Stdin, os.Stdout).Serve(cmd.Context())
}

func (c *cli) runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]
	root := c.config.WorkspaceRoot
	if len(args) == 2 {
		root = args[1]
	}

	stack, err := server.NewStack(c.config, c.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	backend, err := stack.NewBackend(ctx, root)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Stop(context.Background()); err != nil {
			c.logger.Warn("Failed to stop backend", "error", err)
		}
	}()

	result, err := backend.Searcher.Search(ctx, types.SearchRequest{
		WorkspaceRoot:  backend.Server.Root(),
		AnnotationName: name,
	})
	if err != nil {
		return err
	}

	for _, occ := range result {
		c.logger.Info("Found annotation",
			"file", tools.GetRelativePath(tools.UriToPath(occ.Location.FileURI), backend.Server.Root()),
			"line", occ.Location.Line+1,
			"column", occ.Location.Column+1,
			"element_kind", occ.EnclosingElementKind,
			"element_name", occ.EnclosingElementName)
	}

	out, err := json.MarshalIndent(result.Locations(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
