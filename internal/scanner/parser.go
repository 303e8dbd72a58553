package scanner

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/averycrespi/annols/pkg/types"
)

var (
	javaLanguage *sitter.Language
	languageOnce sync.Once
)

func language() *sitter.Language {
	languageOnce.Do(func() {
		javaLanguage = java.GetLanguage()
	})
	return javaLanguage
}

// SyntaxTree is a parsed source file. Callers must Close it.
type SyntaxTree struct {
	URI    string
	Source []byte
	Lines  *LineIndex

	tree *sitter.Tree
}

// Root returns the root node of the tree.
func (t *SyntaxTree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// HasErrors reports whether the parser had to recover from syntax errors.
func (t *SyntaxTree) HasErrors() bool {
	return t.Root().HasError()
}

// Close releases the underlying tree-sitter tree.
func (t *SyntaxTree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// ParserPool owns the tree-sitter parsers used by one orchestrator.
//
// A tree-sitter parser is not re-entrant. In shared mode a single parser is
// guarded by a mutex; in pooled mode every Parse takes an idle parser out of
// a sync.Pool, so no parser is ever used by two goroutines at once.
type ParserPool struct {
	mode string

	mu     sync.Mutex
	shared *sitter.Parser

	pool sync.Pool
}

// NewParserPool creates a parser pool in the given mode (types.ParserModeShared
// or types.ParserModePooled).
func NewParserPool(mode string) (*ParserPool, error) {
	p := &ParserPool{mode: mode}
	switch mode {
	case types.ParserModeShared:
		p.shared = newJavaParser()
	case types.ParserModePooled, "":
		p.mode = types.ParserModePooled
		p.pool.New = func() any { return newJavaParser() }
	default:
		return nil, fmt.Errorf("unknown parser mode %q", mode)
	}
	return p, nil
}

func newJavaParser() *sitter.Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(language())
	return parser
}

// Mode returns the pool's parser mode.
func (p *ParserPool) Mode() string {
	return p.mode
}

// Parse builds a syntax tree for src. Trees with recoverable syntax errors
// are returned normally; only a parser failure yields a ParseFailure error.
func (p *ParserPool) Parse(ctx context.Context, uri string, src []byte) (*SyntaxTree, error) {
	var (
		tree *sitter.Tree
		err  error
	)
	if p.mode == types.ParserModeShared {
		p.mu.Lock()
		tree, err = p.shared.ParseCtx(ctx, nil, src)
		p.mu.Unlock()
	} else {
		parser := p.pool.Get().(*sitter.Parser)
		tree, err = parser.ParseCtx(ctx, nil, src)
		p.pool.Put(parser)
	}
	if err != nil {
		if ctxErr := types.ContextError(ctx, "parse"); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.NewError(types.KindParseFailure, "parse "+uri, err)
	}
	if tree == nil {
		return nil, types.Errorf(types.KindParseFailure, "parse "+uri, "parser returned no tree")
	}
	return &SyntaxTree{
		URI:    uri,
		Source: src,
		Lines:  NewLineIndex(src),
		tree:   tree,
	}, nil
}

// Close releases the shared parser. Pooled parsers are released by their finalizers.
func (p *ParserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared != nil {
		p.shared.Close()
		p.shared = nil
	}
}
