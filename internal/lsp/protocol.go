package lsp

import (
	"encoding/json"

	"github.com/averycrespi/annols/pkg/types"
)

// Command identifiers accepted by workspace/executeCommand.
const (
	CommandFindAnnotatedClasses      = "java/findAnnotatedClasses"
	CommandFindAnnotatedClassesShort = "findAnnotatedClasses"
)

// Commands lists every supported command, in the order advertised.
var Commands = []string{CommandFindAnnotatedClasses, CommandFindAnnotatedClassesShort}

// TextDocumentSyncFull is the LSP TextDocumentSyncKind.Full value.
const TextDocumentSyncFull = 1

// PositionEncodingUTF8 is advertised because columns are byte offsets.
const PositionEncodingUTF8 = "utf-8"

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// InitializeParams is the subset of the LSP initialize params the server reads.
type InitializeParams struct {
	ProcessID        *int              `json:"processId"`
	RootURI          string            `json:"rootUri,omitempty"`
	RootPath         string            `json:"rootPath,omitempty"`
	WorkspaceFolders []workspaceFolder `json:"workspaceFolders,omitempty"`
}

// root picks the workspace root from the params, preferring rootUri.
func (p InitializeParams) root() string {
	switch {
	case p.RootURI != "":
		return types.URIToPath(p.RootURI)
	case len(p.WorkspaceFolders) > 0:
		return types.URIToPath(p.WorkspaceFolders[0].URI)
	default:
		return p.RootPath
	}
}

type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

type ServerCapabilities struct {
	TextDocumentSync        int                   `json:"textDocumentSync"`
	PositionEncoding        string                `json:"positionEncoding"`
	WorkspaceSymbolProvider bool                  `json:"workspaceSymbolProvider"`
	ExecuteCommandProvider  ExecuteCommandOptions `json:"executeCommandProvider"`
	// Mirrors of the above for clients that read the flat capability names.
	SupportsTextSync  bool     `json:"supportsTextSync"`
	SupportedCommands []string `json:"supportedCommands"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult answers initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

// ExecuteCommandParams carries a workspace/executeCommand call.
type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// WorkspaceSymbolParams carries a workspace/symbol call.
type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

// CancelParams carries $/cancelRequest. The id may be a number or a string.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}
