package transport

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

	"github.com/averycrespi/annols/pkg/types"
)

const (
	receiveTimeout = 10 * time.Second
)

// ErrClosed is returned for calls on a stopped transport.
var ErrClosed = errors.New("transport is closed")

var _ types.Transport = &JsonRpcTransport{}

// NotificationHandler receives notifications sent by the peer.
type NotificationHandler func(method string, params json.RawMessage)

// JsonRpcTransport is the client side of a JSON-RPC connection
type JsonRpcTransport struct {
	conn         *Conn
	closer       io.Closer
	requestID    int64
	responses    map[int64]chan *Message
	mu           sync.RWMutex
	done         chan struct{}
	stopOnce     sync.Once
	onNotify     NotificationHandler
	readFinished chan struct{}
}

// NewJsonRpcTransport creates a new JSON-RPC transport
func NewJsonRpcTransport(writer io.Writer, reader io.Reader) *JsonRpcTransport {
	t := &JsonRpcTransport{
		conn:         NewConn(reader, writer),
		responses:    make(map[int64]chan *Message),
		done:         make(chan struct{}),
		readFinished: make(chan struct{}),
	}
	if c, ok := reader.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// OnNotification installs a handler for peer notifications. Call before Start.
func (t *JsonRpcTransport) OnNotification(h NotificationHandler) {
	t.onNotify = h
}

func (t *JsonRpcTransport) Start() error {
	slog.Debug("Starting JSON-RPC transport")
	go t.readResponses()
	return nil
}

// Stop closes the transport. Pending requests fail with ErrClosed.
func (t *JsonRpcTransport) Stop() error {
	t.stopOnce.Do(func() {
		slog.Debug("Stopping JSON-RPC transport")
		close(t.done)
		if t.closer != nil {
			_ = t.closer.Close()
		}
	})
	return nil
}

// Done is closed once the transport stops.
func (t *JsonRpcTransport) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the read loop started by Start has exited.
func (t *JsonRpcTransport) Wait() {
	<-t.readFinished
}

func (t *JsonRpcTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *JsonRpcTransport) readResponses() {
	slog.Debug("Reading JSON-RPC responses")

	defer func() {
		close(t.readFinished)
		_ = t.Stop()
	}()

	for {
		if t.isClosed() {
			return
		}

		msg, err := t.conn.Read()
		if err != nil {
			if errors.Is(err, ErrMalformedMessage) {
				slog.Error("Failed to unmarshal JSON-RPC message", "error", err)
				continue
			}
			if !t.isClosed() && !errors.Is(err, io.EOF) {
				slog.Error("Failed to read JSON-RPC message", "error", err)
			}
			return
		}
		t.handleMessage(msg)
	}
}

func (t *JsonRpcTransport) handleMessage(msg *Message) {
	switch {
	case msg.IsResponse():
		t.handleResponse(msg)
	case msg.IsNotification():
		if t.onNotify != nil {
			t.onNotify(msg.Method, msg.Params)
		}
	case msg.IsRequest():
		// Server-initiated requests (client/registerCapability and friends)
		// are acknowledged with a null result so the peer never blocks on us.
		slog.Debug("Acknowledging server request", "method", msg.Method, "request_id", msg.IDString())
		resp, _ := NewResponse(msg.ID, nil)
		if err := t.conn.Write(resp); err != nil {
			slog.Error("Failed to acknowledge server request", "method", msg.Method, "error", err)
		}
	}
}

func (t *JsonRpcTransport) handleResponse(msg *Message) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		slog.Error("Failed to unmarshal JSON-RPC response ID", "error", err, "raw_id", string(msg.ID))
		return
	}

	t.mu.RLock()
	ch, ok := t.responses[id]
	t.mu.RUnlock()

	if ok {
		ch <- msg
	}
}

// SendRequest sends a JSON-RPC request and waits for the response.
// Without a deadline on ctx the wait is bounded by receiveTimeout.
// A cancelled wait notifies the peer with $/cancelRequest.
func (t *JsonRpcTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.isClosed() {
		return nil, fmt.Errorf("cannot send request %s: %w", method, ErrClosed)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, receiveTimeout)
		defer cancel()
	}

	id := atomic.AddInt64(&t.requestID, 1)
	startTime := time.Now()

	slog.Debug("Sending JSON-RPC request", "request_id", id, "method", method)

	request, err := NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Message, 1)
	t.mu.Lock()
	t.responses[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.responses, id)
		t.mu.Unlock()
	}()

	if err := t.conn.Write(request); err != nil {
		return nil, fmt.Errorf("failed to write JSON-RPC request: %w", err)
	}

	select {
	case response := <-ch:
		duration := time.Since(startTime)
		slog.Debug("Received JSON-RPC response",
			"request_id", id,
			"method", method,
			"duration_ms", duration.Milliseconds())
		if response.Error != nil {
			return nil, response.Error
		}
		if len(response.Result) == 0 {
			return json.RawMessage("null"), nil
		}
		return response.Result, nil
	case <-t.done:
		return nil, fmt.Errorf("request %s: %w", method, ErrClosed)
	case <-ctx.Done():
		duration := time.Since(startTime)
		slog.Error("Gave up waiting for JSON-RPC response",
			"request_id", id,
			"method", method,
			"duration_ms", duration.Milliseconds(),
			"error", ctx.Err())
		_ = t.SendNotification("$/cancelRequest", map[string]any{"id": id})
		return nil, types.ContextError(ctx, "request "+method)
	}
}

// SendNotification sends a JSON-RPC notification (no response expected)
func (t *JsonRpcTransport) SendNotification(method string, params any) error {
	if t.isClosed() {
		return fmt.Errorf("cannot send notification %s: %w", method, ErrClosed)
	}

	slog.Debug("Sending JSON-RPC notification", "method", method)

	notification, err := NewNotification(method, params)
	if err != nil {
		return err
	}

	if err := t.conn.Write(notification); err != nil {
		return fmt.Errorf("failed to write JSON-RPC notification: %w", err)
	}

	return nil
}
