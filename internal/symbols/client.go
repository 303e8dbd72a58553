package symbols

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/pkg/types"
)

// Requester sends one request over a protocol connection.
type Requester interface {
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Hit is one workspace/symbol result. It only seeds the search and is
// never returned to clients as an annotation usage.
type Hit struct {
	Name          string
	Kind          results.SymbolKind
	ContainerName string
	FileURI       string
	// Range is nil when the provider answered with a URI-only location.
	Range *types.Range
}

// Client queries a symbol index through the protocol layer.
type Client struct {
	requester Requester
	logger    *slog.Logger
}

// NewClient creates a symbol index client.
func NewClient(requester Requester, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{requester: requester, logger: logger}
}

// Lookup sends workspace/symbol for name. Any transport or decoding failure
// is reported as UpstreamUnavailable.
func (c *Client) Lookup(ctx context.Context, name string) ([]Hit, error) {
	c.logger.Debug("Looking up workspace symbol", "query", name)

	response, err := c.requester.SendRequest(ctx, "workspace/symbol", map[string]any{"query": name})
	if err != nil {
		return nil, types.NewError(types.KindUpstreamUnavailable, "workspace/symbol", err)
	}

	hits, err := DecodeHits(response)
	if err != nil {
		return nil, types.NewError(types.KindUpstreamUnavailable, "workspace/symbol", err)
	}

	c.logger.Debug("Found workspace symbols", "query", name, "count", len(hits))
	return hits, nil
}

// DecodeHits accepts null, SymbolInformation[] or WorkspaceSymbol[].
func DecodeHits(response json.RawMessage) ([]Hit, error) {
	if len(response) == 0 || string(response) == "null" {
		return []Hit{}, nil
	}

	var raw []types.WorkspaceSymbol
	if err := json.Unmarshal(response, &raw); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(raw))
	for _, sym := range raw {
		var loc struct {
			URI   string       `json:"uri"`
			Range *types.Range `json:"range"`
		}
		if len(sym.Location) > 0 {
			if err := json.Unmarshal(sym.Location, &loc); err != nil {
				return nil, err
			}
		}
		hits = append(hits, Hit{
			Name:          sym.Name,
			Kind:          results.NewSymbolKind(sym.Kind),
			ContainerName: sym.ContainerName,
			FileURI:       loc.URI,
			Range:         loc.Range,
		})
	}
	return hits, nil
}

// IsDefinition reports whether hit declares the annotation type name.
// Annotation types surface as interfaces in most Java servers, classes in some.
func IsDefinition(hit Hit, name string) bool {
	if hit.Name != name {
		return false
	}
	return hit.Kind == results.SymbolKindInterface || hit.Kind == results.SymbolKindClass
}
