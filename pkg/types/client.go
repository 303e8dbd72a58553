package types

import (
	"context"
	"encoding/json"
)

// Client defines the interface of an upstream language server client
type Client interface {
	Start(ctx context.Context, workspaceRoot string) error
	Stop(ctx context.Context) error

	FuzzyFindSymbol(ctx context.Context, query string) ([]SymbolInformation, error)
}

// Position represents a position in a text document
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range represents a range in a text document
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a location in a text document
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// SymbolInformation represents information about a symbol
type SymbolInformation struct {
	Name          string   `json:"name"`
	Kind          int      `json:"kind"`
	Location      Location `json:"location"`
	ContainerName string   `json:"containerName,omitempty"`
}

// WorkspaceSymbol is the LSP 3.17 form of a workspace/symbol result.
// Its location may omit the range, in which case only the URI is known.
type WorkspaceSymbol struct {
	Name          string          `json:"name"`
	Kind          int             `json:"kind"`
	Location      json.RawMessage `json:"location"`
	ContainerName string          `json:"containerName,omitempty"`
}
