package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/averycrespi/annols/internal/metrics"
	"github.com/averycrespi/annols/internal/transport"
	"github.com/averycrespi/annols/pkg/project"
	"github.com/averycrespi/annols/pkg/types"
)

// State is the connection lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	errRequestCancelled = errors.New("request cancelled by client")
	errShuttingDown     = errors.New("server is shutting down")
)

// Searcher runs an annotation search.
type Searcher interface {
	Search(ctx context.Context, req types.SearchRequest) (types.SearchResult, error)
}

// SymbolQuerier answers workspace/symbol for a workspace root.
type SymbolQuerier interface {
	QuerySymbols(ctx context.Context, root, query string) ([]types.SymbolInformation, error)
}

// Hooks run at lifecycle transitions. Either may be nil.
type Hooks struct {
	// OnInitialize runs before the initialize response is sent. An error
	// is logged and does not fail initialize.
	OnInitialize func(ctx context.Context, root string) error
	// OnShutdown runs after in-flight requests have drained.
	OnShutdown func(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	Protocol types.ProtocolConfig
	Hooks    Hooks
	// WorkspaceRoot is used when initialize names no root.
	WorkspaceRoot string
	Logger        *slog.Logger
}

var _ types.Server = &Server{}

// Server serves one protocol connection.
type Server struct {
	conn   *transport.Conn
	closer io.Closer
	opts   Options
	logger *slog.Logger

	searcher Searcher
	symbols  SymbolQuerier

	state            atomic.Int32
	shutdownReceived atomic.Bool

	rootMu sync.RWMutex
	root   string

	mu      sync.Mutex
	pending map[string]*call

	searchGate *semaphore.Weighted
	inflight   sync.WaitGroup
	background sync.WaitGroup
}

// call is the pending entry for one feature request.
type call struct {
	method string
	cancel context.CancelCauseFunc
}

// NewServer creates a server reading requests from r and writing responses to w.
func NewServer(r io.Reader, w io.Writer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Protocol = withDefaults(opts.Protocol)
	s := &Server{
		conn:       transport.NewConn(r, w),
		opts:       opts,
		logger:     opts.Logger,
		root:       opts.WorkspaceRoot,
		pending:    make(map[string]*call),
		searchGate: semaphore.NewWeighted(1),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// NewInProcess creates a Ready server without a connection, rooted at root.
// Only its Loopback is usable; Serve must not be called.
func NewInProcess(root string, opts Options) *Server {
	s := NewServer(nil, io.Discard, opts)
	s.root = root
	s.setState(StateReady)
	return s
}

func withDefaults(p types.ProtocolConfig) types.ProtocolConfig {
	var defaults types.Config
	defaults.ApplyDefaults()
	if p.RequestTimeoutSec <= 0 {
		p.RequestTimeoutSec = defaults.Protocol.RequestTimeoutSec
	}
	if p.InitializeTimeoutSec <= 0 {
		p.InitializeTimeoutSec = defaults.Protocol.InitializeTimeoutSec
	}
	if p.ShutdownTimeoutSec <= 0 {
		p.ShutdownTimeoutSec = defaults.Protocol.ShutdownTimeoutSec
	}
	return p
}

// SetSearcher installs the annotation searcher. Call before Serve.
func (s *Server) SetSearcher(searcher Searcher) {
	s.searcher = searcher
}

// SetSymbolQuerier installs the workspace/symbol provider. Call before Serve.
func (s *Server) SetSymbolQuerier(symbols SymbolQuerier) {
	s.symbols = symbols
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(state State) {
	old := State(s.state.Swap(int32(state)))
	if old != state {
		s.logger.Debug("Lifecycle transition", "from", old, "to", state)
	}
}

// Root returns the workspace root in effect for this connection.
func (s *Server) Root() string {
	s.rootMu.RLock()
	defer s.rootMu.RUnlock()
	return s.root
}

// ExitCode is 0 when the client sent shutdown before the connection ended, 1 otherwise.
func (s *Server) ExitCode() int {
	if s.shutdownReceived.Load() {
		return 0
	}
	return 1
}

// Serve reads messages until exit, end of stream, or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(errShuttingDown)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			if s.closer != nil {
				_ = s.closer.Close()
			}
		case <-stop:
		}
	}()

	defer func() {
		s.cancelPending(errShuttingDown)
		s.inflight.Wait()
		s.background.Wait()
	}()

	s.logger.Info("Serving protocol connection")
	for {
		msg, err := s.conn.Read()
		if err != nil {
			if errors.Is(err, transport.ErrMalformedMessage) {
				s.logger.Warn("Dropping malformed message", "error", err)
				s.reply(nil, "", nil, transport.NewRPCError(transport.CodeParseError, types.KindProtocolViolation, err.Error()))
				continue
			}
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				s.logger.Info("Protocol connection closed", "state", s.State())
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		switch {
		case msg.IsRequest():
			s.handleRequest(ctx, msg)
		case msg.IsNotification():
			s.handleNotification(msg)
		case msg.IsResponse():
			s.logger.Debug("Ignoring response from client", "request_id", msg.IDString())
		default:
			s.reply(msg.ID, "", nil, transport.NewRPCError(transport.CodeInvalidRequest, types.KindProtocolViolation, "message is neither request, notification nor response"))
		}

		if s.State() == StateTerminated {
			s.logger.Info("Exiting after shutdown")
			return nil
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, msg *transport.Message) {
	s.logger.Debug("Received request", "method", msg.Method, "request_id", msg.IDString())

	if msg.Method == "initialize" {
		s.initialize(ctx, msg)
		return
	}
	if msg.Method == "shutdown" {
		s.shutdown(ctx, msg)
		return
	}
	if rpcErr := s.checkState(msg.Method); rpcErr != nil {
		s.reply(msg.ID, msg.Method, nil, rpcErr)
		return
	}
	s.dispatch(ctx, msg)
}

// checkState rejects feature requests outside Initializing and Ready.
func (s *Server) checkState(method string) *transport.RPCError {
	switch state := s.State(); state {
	case StateInitializing, StateReady:
		return nil
	case StateUninitialized:
		s.logger.Warn("Request before initialize", "method", method, "kind", types.KindProtocolViolation)
		return transport.NewRPCError(transport.CodeServerNotInitialized, types.KindProtocolViolation, "server not initialized")
	default:
		s.logger.Warn("Request after shutdown", "method", method, "state", state, "kind", types.KindProtocolViolation)
		return transport.NewRPCError(transport.CodeInvalidRequest, types.KindProtocolViolation, "server is shutting down")
	}
}

func (s *Server) initialize(ctx context.Context, msg *transport.Message) {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		s.logger.Warn("Repeated initialize", "state", s.State(), "kind", types.KindProtocolViolation)
		s.reply(msg.ID, msg.Method, nil, transport.NewRPCError(transport.CodeInvalidRequest, types.KindProtocolViolation, "server already initialized"))
		return
	}

	var params InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.logger.Warn("Malformed initialize params", "error", err)
		}
	}
	if root := params.root(); root != "" {
		s.rootMu.Lock()
		s.root = root
		s.rootMu.Unlock()
	}
	root := s.Root()
	s.logger.Info("Initializing", "root", root)

	if s.opts.Hooks.OnInitialize != nil {
		hookCtx, cancel := context.WithTimeout(ctx, s.opts.Protocol.InitializeTimeout())
		if err := s.opts.Hooks.OnInitialize(hookCtx, root); err != nil {
			s.logger.Warn("Initialize hook failed, continuing without it", "error", err)
		}
		cancel()
	}

	s.reply(msg.ID, msg.Method, InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:        TextDocumentSyncFull,
			PositionEncoding:        PositionEncodingUTF8,
			WorkspaceSymbolProvider: true,
			ExecuteCommandProvider:  ExecuteCommandOptions{Commands: Commands},
			SupportsTextSync:        true,
			SupportedCommands:       Commands,
		},
		ServerInfo: ServerInfo{Name: project.Name, Version: project.Version},
	}, nil)
}

// shutdown stops accepting requests at once and answers after in-flight
// requests drain or the shutdown timeout cancels them.
func (s *Server) shutdown(ctx context.Context, msg *transport.Message) {
	state := s.State()
	if state != StateInitializing && state != StateReady {
		s.reply(msg.ID, msg.Method, nil, s.checkState(msg.Method))
		return
	}
	s.setState(StateShuttingDown)
	s.shutdownReceived.Store(true)

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		drained := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(drained)
		}()

		timer := time.NewTimer(s.opts.Protocol.ShutdownTimeout())
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			s.logger.Warn("Shutdown timeout reached, cancelling in-flight requests")
			s.cancelPending(errShuttingDown)
			<-drained
		case <-ctx.Done():
			<-drained
		}

		if s.opts.Hooks.OnShutdown != nil {
			hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Protocol.ShutdownTimeout())
			if err := s.opts.Hooks.OnShutdown(hookCtx); err != nil {
				s.logger.Warn("Shutdown hook failed", "error", err)
			}
			cancel()
		}
		s.reply(msg.ID, msg.Method, nil, nil)
	}()
}

func (s *Server) handleNotification(msg *transport.Message) {
	switch msg.Method {
	case "initialized":
		if s.State() != StateInitializing {
			s.logger.Warn("Unexpected initialized notification", "state", s.State(), "kind", types.KindProtocolViolation)
			return
		}
		s.setState(StateReady)
		s.logger.Info("Server ready", "root", s.Root())
	case "exit":
		if s.State() != StateShuttingDown {
			s.logger.Warn("Ignoring exit before shutdown", "state", s.State(), "kind", types.KindProtocolViolation)
			return
		}
		s.setState(StateTerminated)
	case "$/cancelRequest":
		var params CancelParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params.ID) == 0 {
			s.logger.Warn("Malformed cancel request", "params", string(msg.Params))
			return
		}
		s.cancelCall(transport.IDString(params.ID))
	default:
		s.logger.Debug("Ignoring notification", "method", msg.Method)
	}
}

// dispatch runs a feature request on its own goroutine under a pending
// entry with its own timeout. Exactly one response is written.
func (s *Server) dispatch(ctx context.Context, msg *transport.Message) {
	id := msg.IDString()
	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, s.opts.Protocol.RequestTimeout())
	callCtx, cancel := context.WithCancelCause(timeoutCtx)

	s.mu.Lock()
	if _, dup := s.pending[id]; dup {
		s.mu.Unlock()
		cancel(nil)
		cancelTimeout()
		s.reply(msg.ID, msg.Method, nil, transport.NewRPCError(transport.CodeInvalidRequest, types.KindProtocolViolation, "duplicate request id "+id))
		return
	}
	s.pending[id] = &call{method: msg.Method, cancel: cancel}
	s.mu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancelTimeout()
		defer cancel(nil)

		result, err := s.await(callCtx, msg.Method, msg.Params)

		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()

		s.reply(msg.ID, msg.Method, result, err)
	}()
}

type outcome struct {
	result any
	err    error
}

// await runs the handler and returns as soon as it finishes or ctx ends.
// A handler that outlives ctx has its result discarded.
func (s *Server) await(ctx context.Context, method string, params json.RawMessage) (any, error) {
	done := make(chan outcome, 1)
	go func() {
		result, err := s.handle(ctx, method, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if ctx.Err() != nil {
			return nil, s.contextError(ctx, method)
		}
		return out.result, out.err
	case <-ctx.Done():
		return nil, s.contextError(ctx, method)
	}
}

// contextError reports why ctx ended: client cancellation and shutdown are
// Cancelled, an expired deadline is Timeout.
func (s *Server) contextError(ctx context.Context, method string) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errRequestCancelled), errors.Is(cause, errShuttingDown):
		return types.NewError(types.KindCancelled, method, cause)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.Errorf(types.KindTimeout, method, "no result within %s", s.opts.Protocol.RequestTimeout())
	}
	return types.ContextError(ctx, method)
}

func (s *Server) cancelCall(id string) {
	s.mu.Lock()
	c, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("Cancel for unknown or finished request", "request_id", id)
		return
	}
	s.logger.Info("Cancelling request", "request_id", id, "method", c.method)
	c.cancel(errRequestCancelled)
}

func (s *Server) cancelPending(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.pending {
		c.cancel(cause)
	}
}

// reply writes the single response for a request. A nil id writes a
// response with a null id.
func (s *Server) reply(id json.RawMessage, method string, result any, err error) {
	var msg *transport.Message
	status := "ok"
	if err != nil {
		rpcErr := transport.ToRPCError(err)
		status = string(rpcErr.Kind())
		if status == "" {
			status = "error"
		}
		s.logger.Debug("Request failed", "method", method, "request_id", transport.IDString(id), "code", rpcErr.Code, "error", rpcErr.Message)
		msg = transport.NewErrorResponse(id, rpcErr)
	} else {
		var encodeErr error
		msg, encodeErr = transport.NewResponse(id, result)
		if encodeErr != nil {
			s.logger.Error("Failed to encode result", "method", method, "error", encodeErr)
			status = string(types.KindInternal)
			msg = transport.NewErrorResponse(id, transport.NewRPCError(transport.CodeInternalError, types.KindInternal, encodeErr.Error()))
		}
	}
	if method != "" {
		metrics.RequestsTotal.WithLabelValues(method, status).Inc()
	}
	if writeErr := s.conn.Write(msg); writeErr != nil {
		s.logger.Error("Failed to write response", "method", method, "error", writeErr)
	}
}
