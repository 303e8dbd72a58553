package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
)

// Searcher runs an annotation search.
type Searcher interface {
	Search(ctx context.Context, req types.SearchRequest) (types.SearchResult, error)
}

// FindAnnotationUsagesTool handles find annotation usages requests
type FindAnnotationUsagesTool struct {
	searcher Searcher
	config   types.Config
}

// NewFindAnnotationUsagesTool creates a new find annotation usages tool
func NewFindAnnotationUsagesTool(searcher Searcher, config types.Config) *FindAnnotationUsagesTool {
	return &FindAnnotationUsagesTool{
		searcher: searcher,
		config:   config,
	}
}

// GetTool returns the MCP tool definition
func (t *FindAnnotationUsagesTool) GetTool() mcp.Tool {
	return mcp.NewTool(ToolFindAnnotationUsages,
		mcp.WithDescription("Find every place a Java annotation is used in the workspace. "+
			"Matches annotations syntactically, so mentions in comments and string literals are ignored. "+
			"Returns the annotated element (type, method, field or variable) with source context for each usage."),
		mcp.WithString("annotation_name", mcp.Required(), mcp.Description("Simple name of the annotation, e.g. 'Entity' or '@Entity'")),
	)
}

// Handle processes the tool request
func (t *FindAnnotationUsagesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	annotationName := strings.TrimPrefix(strings.TrimSpace(mcp.ParseString(req, "annotation_name", "")), "@")
	if annotationName == "" {
		return mcp.NewToolResultError("annotation_name parameter is required"), nil
	}

	result, err := t.searcher.Search(ctx, types.SearchRequest{
		WorkspaceRoot:  t.config.WorkspaceRoot,
		AnnotationName: annotationName,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search annotation usages: %v", err)), nil
	}

	toolResult := results.FindAnnotationUsagesToolResult{
		Arguments: results.FindAnnotationUsagesToolArgs{AnnotationName: annotationName},
		Usages:    make([]results.AnnotationUsage, 0, len(result)),
	}
	for _, occ := range result {
		file := GetRelativePath(UriToPath(occ.Location.FileURI), t.config.WorkspaceRoot)
		usage := results.NewAnnotationUsage(occ, file)

		if source, err := readFileContext(occ.Location.FileURI, occ.Location.Line); err == nil {
			usage.Source = source
		} else {
			slog.Debug("Failed to read source context", "uri", occ.Location.FileURI, "error", err)
		}

		toolResult.Usages = append(toolResult.Usages, usage)
	}

	if len(toolResult.Usages) == 0 {
		toolResult.Message = "No usages found. " +
			"This could mean that the annotation is never applied, or that its name is spelled differently."
	} else {
		toolResult.Message = fmt.Sprintf("Found %d usages of @%s.", len(toolResult.Usages), annotationName)
	}

	jsonBytes, err := json.MarshalIndent(toolResult, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal JSON: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}
