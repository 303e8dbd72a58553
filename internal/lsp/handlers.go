package lsp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/averycrespi/annols/internal/transport"
	"github.com/averycrespi/annols/pkg/types"
)

// handle runs one feature request and returns its result.
func (s *Server) handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "workspace/executeCommand":
		var p ExecuteCommandParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.executeCommand(ctx, p)
	case "workspace/symbol":
		var p WorkspaceSymbolParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.workspaceSymbol(ctx, p)
	default:
		return nil, transport.NewRPCError(transport.CodeMethodNotFound, "", "method not found: "+method)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return transport.NewRPCError(transport.CodeInvalidParams, types.KindInvalidArgument, fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

func (s *Server) executeCommand(ctx context.Context, p ExecuteCommandParams) ([]types.AnnotationLocation, error) {
	if p.Command != CommandFindAnnotatedClasses && p.Command != CommandFindAnnotatedClassesShort {
		return nil, transport.NewRPCError(transport.CodeInvalidParams, types.KindInvalidArgument, "unsupported command: "+p.Command)
	}

	name, ok := annotationArgument(p.Arguments)
	if !ok {
		s.logger.Warn("Command needs an annotation name as its first argument",
			"command", p.Command,
			"kind", types.KindInvalidArgument)
		return []types.AnnotationLocation{}, nil
	}
	if s.searcher == nil {
		return nil, types.Errorf(types.KindInternal, p.Command, "no searcher configured")
	}

	if err := s.searchGate.Acquire(ctx, 1); err != nil {
		return nil, types.ContextError(ctx, p.Command)
	}
	defer s.searchGate.Release(1)

	result, err := s.searcher.Search(ctx, types.SearchRequest{
		WorkspaceRoot:  s.Root(),
		AnnotationName: name,
	})
	if err != nil {
		return nil, err
	}
	return result.Locations(), nil
}

// annotationArgument returns the first argument when it is a non-empty string.
func annotationArgument(args []json.RawMessage) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil || name == "" {
		return "", false
	}
	return name, true
}

func (s *Server) workspaceSymbol(ctx context.Context, p WorkspaceSymbolParams) ([]types.SymbolInformation, error) {
	if s.symbols == nil {
		return []types.SymbolInformation{}, nil
	}
	return s.symbols.QuerySymbols(ctx, s.Root(), p.Query)
}
