package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/internal/symbols"
	"github.com/averycrespi/annols/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
)

// SymbolFinder looks up workspace symbols by name.
type SymbolFinder interface {
	Lookup(ctx context.Context, name string) ([]symbols.Hit, error)
}

// FindSymbolDefinitionsByNameTool handles find symbol definitions by name requests
type FindSymbolDefinitionsByNameTool struct {
	finder SymbolFinder
	config types.Config
}

// NewFindSymbolDefinitionsByNameTool creates a new find symbol definitions by name tool
func NewFindSymbolDefinitionsByNameTool(finder SymbolFinder, config types.Config) *FindSymbolDefinitionsByNameTool {
	return &FindSymbolDefinitionsByNameTool{
		finder: finder,
		config: config,
	}
}

// GetTool returns the MCP tool definition
func (t *FindSymbolDefinitionsByNameTool) GetTool() mcp.Tool {
	tool := mcp.NewTool(ToolFindSymbolDefinitionsByName,
		mcp.WithDescription("Find the definition of a symbol by name in Java code, returning a list of symbol definitions"),
		mcp.WithString("symbol_name", mcp.Required(), mcp.Description("Symbol name to find the definition for, with fuzzy matching")),
	)
	return tool
}

// Handle processes the tool request
func (t *FindSymbolDefinitionsByNameTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbolName := mcp.ParseString(req, "symbol_name", "")
	if symbolName == "" {
		return mcp.NewToolResultError("symbol_name parameter is required"), nil
	}

	hits, err := t.finder.Lookup(ctx, symbolName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search workspace symbols: %v", err)), nil
	}

	toolResult := results.FindSymbolDefinitionsByNameToolResult{
		Arguments:   results.FindSymbolDefinitionByNameToolArgs{SymbolName: symbolName},
		Definitions: make([]results.SymbolDefinition, 0, len(hits)),
	}
	for _, hit := range hits {
		var position types.Position
		if hit.Range != nil {
			position = hit.Range.Start
		}
		location := results.NewSymbolLocation(GetRelativePath(UriToPath(hit.FileURI), t.config.WorkspaceRoot), position)

		definition := results.SymbolDefinition{
			Name:          hit.Name,
			Kind:          hit.Kind,
			ContainerName: hit.ContainerName,
			Location:      location,
			Anchor:        location.ToAnchor(),
		}
		if hit.Range != nil {
			if source, err := readFileContext(hit.FileURI, position.Line); err == nil {
				definition.Source = source
			}
		}

		toolResult.Definitions = append(toolResult.Definitions, definition)
	}

	if len(toolResult.Definitions) == 0 {
		toolResult.Message = "No symbol definitions found. " +
			"This could mean that the symbol name is incorrect, or that the symbol is not defined in the workspace."
	} else {
		toolResult.Message = fmt.Sprintf("Found %d symbol definitions.", len(toolResult.Definitions))
	}

	jsonBytes, err := json.MarshalIndent(toolResult, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal JSON: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}
