package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolFindAnnotationUsages        = "find_annotation_usages"
	ToolFindSymbolDefinitionsByName = "find_symbol_definitions_by_name"
)

// contextLines is how many lines of source are shown on each side of a result.
const contextLines = 2

// Tool is an MCP tool with its handler.
type Tool interface {
	GetTool() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}
