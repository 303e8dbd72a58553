//go:build integration

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/averycrespi/annols/internal/lsp"
	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/internal/transport"
	"github.com/averycrespi/annols/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MCPRequest represents a JSON-RPC 2.0 request
type MCPRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// MCPResponse represents a JSON-RPC 2.0 response
type MCPResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC 2.0 error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// serverProcess manages a server process for testing
type serverProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	scanner *bufio.Scanner
}

func workspaceRoot(t *testing.T) string {
	root, err := filepath.Abs(filepath.Join("..", "..", "testdata", "java"))
	require.NoError(t, err)
	return root
}

// startServer runs the CLI with args, logging its stderr through t
func startServer(t *testing.T, args ...string) *serverProcess {
	cmd := exec.Command("go", append([]string{"run", "."}, args...)...)

	stdin, err := cmd.StdinPipe()
	require.NoError(t, err, "Failed to create stdin pipe")

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err, "Failed to create stdout pipe")

	stderr, err := cmd.StderrPipe()
	require.NoError(t, err, "Failed to create stderr pipe")

	require.NoError(t, cmd.Start(), "Failed to start server")

	go func() {
		stderrScanner := bufio.NewScanner(stderr)
		for stderrScanner.Scan() {
			t.Logf("Server stderr: %s", stderrScanner.Text())
		}
	}()

	return &serverProcess{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		scanner: bufio.NewScanner(stdout),
	}
}

// stop terminates the server process
func (s *serverProcess) stop() {
	_ = s.stdin.Close()
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}

// sendRequest sends a newline-delimited MCP request and waits for its response
func (s *serverProcess) sendRequest(t *testing.T, req MCPRequest) MCPResponse {
	reqJSON, err := json.Marshal(req)
	require.NoError(t, err, "Failed to marshal request")

	_, err = s.stdin.Write(append(reqJSON, '\n'))
	require.NoError(t, err, "Failed to write request")

	done := make(chan MCPResponse, 1)
	errChan := make(chan error, 1)

	go func() {
		if s.scanner.Scan() {
			var resp MCPResponse
			if err := json.Unmarshal(s.scanner.Bytes(), &resp); err != nil {
				errChan <- fmt.Errorf("failed to unmarshal response: %w", err)
				return
			}
			done <- resp
			return
		}
		errChan <- fmt.Errorf("scanner stopped: %v", s.scanner.Err())
	}()

	// The first request includes compile time for go run.
	select {
	case resp := <-done:
		return resp
	case err := <-errChan:
		t.Fatalf("Error reading response: %v", err)
	case <-time.After(2 * time.Minute):
		t.Fatal("Timeout waiting for response")
	}
	return MCPResponse{}
}

// parseToolText returns the text of the first content item in a tool result
func parseToolText(t *testing.T, raw json.RawMessage) string {
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	require.False(t, result.IsError, "Tool returned an error")
	require.NotEmpty(t, result.Content, "Content array should not be empty")
	return result.Content[0].Text
}

func TestMCPServerIntegration(t *testing.T) {
	root := workspaceRoot(t)
	server := startServer(t, "mcp", "--workspace-root", root, "--log-level", "debug")
	defer server.stop()

	resp := server.sendRequest(t, MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"clientInfo":      map[string]any{"name": "integration-test", "version": "1.0.0"},
		},
	})
	require.Nil(t, resp.Error, "Initialize failed")

	t.Run("ListTools", func(t *testing.T) {
		resp := server.sendRequest(t, MCPRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
		require.Nil(t, resp.Error)

		var result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		}
		require.NoError(t, json.Unmarshal(resp.Result, &result))

		var names []string
		for _, tool := range result.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"find_annotation_usages", "find_symbol_definitions_by_name"}, names)
	})

	t.Run("FindAnnotationUsages", func(t *testing.T) {
		resp := server.sendRequest(t, MCPRequest{
			JSONRPC: "2.0",
			ID:      3,
			Method:  "tools/call",
			Params: map[string]any{
				"name":      "find_annotation_usages",
				"arguments": map[string]any{"annotation_name": "MySearchableAnnotation"},
			},
		})
		require.Nil(t, resp.Error)

		var result results.FindAnnotationUsagesToolResult
		require.NoError(t, json.Unmarshal([]byte(parseToolText(t, resp.Result)), &result))
		require.Len(t, result.Usages, 3)

		assert.Equal(t, types.ElementType, result.Usages[0].ElementKind)
		assert.Equal(t, "User", result.Usages[0].ElementName)
		assert.Equal(t, types.ElementField, result.Usages[1].ElementKind)
		assert.Equal(t, "id", result.Usages[1].ElementName)
		assert.Equal(t, types.ElementMethod, result.Usages[2].ElementKind)
		assert.Equal(t, "findUser", result.Usages[2].ElementName)
		for _, usage := range result.Usages {
			assert.Equal(t, usage.Location.ToAnchor(), usage.Anchor, "Anchor should match the location")
			assert.NotNil(t, usage.Source, "Usage should carry source context")
		}
	})

	t.Run("FindSymbolDefinitionsByName", func(t *testing.T) {
		resp := server.sendRequest(t, MCPRequest{
			JSONRPC: "2.0",
			ID:      4,
			Method:  "tools/call",
			Params: map[string]any{
				"name":      "find_symbol_definitions_by_name",
				"arguments": map[string]any{"symbol_name": "UserService"},
			},
		})
		require.Nil(t, resp.Error)

		var result results.FindSymbolDefinitionsByNameToolResult
		require.NoError(t, json.Unmarshal([]byte(parseToolText(t, resp.Result)), &result))
		require.NotEmpty(t, result.Definitions)
		assert.Equal(t, "UserService", result.Definitions[0].Name)
		assert.Equal(t, results.SymbolKindClass, result.Definitions[0].Kind)
	})
}

func TestLanguageServerIntegration(t *testing.T) {
	root := workspaceRoot(t)
	server := startServer(t, "serve", "--log-level", "debug")
	defer server.stop()

	tr := transport.NewJsonRpcTransport(server.stdin, server.stdout)
	require.NoError(t, tr.Start())
	defer func() { _ = tr.Stop() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	raw, err := tr.SendRequest(ctx, "initialize", map[string]any{"processId": nil, "rootUri": types.PathToURI(root)})
	require.NoError(t, err)

	var init lsp.InitializeResult
	require.NoError(t, json.Unmarshal(raw, &init))
	assert.Contains(t, init.Capabilities.ExecuteCommandProvider.Commands, lsp.CommandFindAnnotatedClasses)
	require.NoError(t, tr.SendNotification("initialized", map[string]any{}))

	raw, err = tr.SendRequest(ctx, "workspace/executeCommand", map[string]any{
		"command":   lsp.CommandFindAnnotatedClasses,
		"arguments": []string{"MySearchableAnnotation"},
	})
	require.NoError(t, err)

	var locations []types.AnnotationLocation
	require.NoError(t, json.Unmarshal(raw, &locations))
	require.Len(t, locations, 3)
	assert.Equal(t, types.PathToURI(filepath.Join(root, "src", "main", "java", "com", "example", "model", "User.java")), locations[0].FileURI)
	assert.Equal(t, types.Position{Line: 4, Character: 0}, locations[0].Range.Start)
	assert.Equal(t, types.Position{Line: 6, Character: 4}, locations[1].Range.Start)
	assert.Equal(t, types.ElementMethod, locations[2].EnclosingElementKind)

	_, err = tr.SendRequest(ctx, "shutdown", nil)
	require.NoError(t, err)
	require.NoError(t, tr.SendNotification("exit", nil))
}
