package lsp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/averycrespi/annols/internal/transport"
	"github.com/averycrespi/annols/pkg/types"
)

// Loopback sends requests to a Server in-process. Requests go through the
// same state checks, codec and per-request timeout as wire requests but get
// no pending entry, so they cannot be cancelled by the client.
type Loopback struct {
	server *Server
}

// Loopback returns an in-process requester for s.
func (s *Server) Loopback() *Loopback {
	return &Loopback{server: s}
}

// SendRequest dispatches method and returns the encoded result. Errors are
// *transport.RPCError values, as they would be on the wire.
func (l *Loopback) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s := l.server

	msg, err := transport.NewRequest(0, method, params)
	if err != nil {
		return nil, err
	}
	// Requests issued while a search is finishing after shutdown are allowed.
	if state := s.State(); state != StateShuttingDown {
		if rpcErr := s.checkState(method); rpcErr != nil {
			return nil, rpcErr
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Protocol.RequestTimeout())
	defer cancel()

	result, err := s.await(ctx, msg.Method, msg.Params)
	if err != nil {
		return nil, transport.ToRPCError(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, transport.NewRPCError(transport.CodeInternalError, types.KindInternal, fmt.Sprintf("failed to encode result: %v", err))
	}
	return data, nil
}

// SendNotification is accepted for interface parity and only logged.
func (l *Loopback) SendNotification(method string, _ any) error {
	l.server.logger.Debug("Ignoring loopback notification", "method", method)
	return nil
}
