package tools

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/pkg/types"
)

// PathToUri converts a file path, relative to workspaceRoot when not absolute, to a file URI
func PathToUri(filePath string, workspaceRoot string) string {
	if filePath != "" && !filepath.IsAbs(filePath) && types.URIToPath(filePath) == filePath {
		filePath = filepath.Join(workspaceRoot, filePath)
	}
	return types.PathToURI(filePath)
}

// UriToPath converts a file URI to a local file path
func UriToPath(uri string) string {
	return types.URIToPath(uri)
}

// GetRelativePath converts absolute path to relative path from workspace root
func GetRelativePath(absolutePath, workspaceRoot string) string {
	if rel, err := filepath.Rel(workspaceRoot, absolutePath); err == nil {
		return rel
	}
	return filepath.Base(absolutePath)
}

// ReadSourceLines reads the 0-indexed lines startLine..endLine (inclusive) from reader.
// Returned line numbers are 1-indexed.
func ReadSourceLines(reader io.Reader, startLine, endLine, highlightLine int) ([]results.SourceLine, error) {
	var lines []results.SourceLine
	scanner := bufio.NewScanner(reader)
	currentLine := 0

	for scanner.Scan() {
		if currentLine >= startLine && currentLine <= endLine {
			lines = append(lines, results.SourceLine{
				Number:    currentLine + 1,
				Content:   scanner.Text(),
				Highlight: currentLine == highlightLine,
			})
		}
		currentLine++
		if currentLine > endLine {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan source lines: %w", err)
	}

	return lines, nil
}

// ReadSourceContext reads contextLines lines on each side of the 0-indexed line.
func ReadSourceContext(reader io.Reader, line int, contextLines int) (*results.SourceContext, error) {
	start := line - contextLines
	if start < 0 {
		start = 0
	}

	lines, err := ReadSourceLines(reader, start, line+contextLines, line)
	if err != nil {
		return nil, fmt.Errorf("failed to read source lines: %w", err)
	}

	return &results.SourceContext{Lines: lines}, nil
}

// readFileContext reads the source context around a 0-indexed line of the file at uri.
func readFileContext(uri string, line int) (*results.SourceContext, error) {
	file, err := os.Open(UriToPath(uri))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadSourceContext(file, line, contextLines)
}
