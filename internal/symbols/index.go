package symbols

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/internal/scanner"
	"github.com/averycrespi/annols/internal/workspace"
	"github.com/averycrespi/annols/pkg/types"
)

var declarationKinds = map[string]int{
	"class_declaration":                   results.LSPKindClass,
	"record_declaration":                  results.LSPKindClass,
	"interface_declaration":               results.LSPKindInterface,
	"annotation_type_declaration":         results.LSPKindInterface,
	"enum_declaration":                    results.LSPKindEnum,
	"method_declaration":                  results.LSPKindMethod,
	"annotation_type_element_declaration": results.LSPKindMethod,
	"constructor_declaration":             results.LSPKindConstructor,
	"field_declaration":                   results.LSPKindField,
	"constant_declaration":                results.LSPKindConstant,
	"enum_constant":                       results.LSPKindEnumMember,
}

// LocalIndex answers workspace/symbol from Java declarations parsed on demand.
// Nothing is cached between queries.
type LocalIndex struct {
	walker  *workspace.Walker
	parsers *scanner.ParserPool
	workers int
	logger  *slog.Logger
}

// NewLocalIndex creates a declaration index over the walker's files.
func NewLocalIndex(walker *workspace.Walker, parsers *scanner.ParserPool, workers int, logger *slog.Logger) *LocalIndex {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalIndex{walker: walker, parsers: parsers, workers: workers, logger: logger}
}

type fileSymbols struct {
	order   int
	symbols []types.SymbolInformation
}

// QuerySymbols returns declarations below root whose name contains query,
// case-insensitively. An empty query returns every declaration. Exact
// name matches come first, then discovery order.
func (x *LocalIndex) QuerySymbols(ctx context.Context, root, query string) ([]types.SymbolInformation, error) {
	if err := workspace.ValidateRoot(root); err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	var (
		mu    sync.Mutex
		found []fileSymbols
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)

	order := 0
	for path := range x.walker.Files(gctx, root) {
		if gctx.Err() != nil {
			break
		}
		i := order
		order++
		g.Go(func() error {
			syms := x.fileDeclarations(gctx, path, needle)
			if len(syms) == 0 {
				return nil
			}
			mu.Lock()
			found = append(found, fileSymbols{order: i, symbols: syms})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := types.ContextError(ctx, "workspace/symbol"); err != nil {
		return nil, err
	}

	sort.Slice(found, func(a, b int) bool { return found[a].order < found[b].order })
	var out []types.SymbolInformation
	for _, f := range found {
		out = append(out, f.symbols...)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return strings.EqualFold(out[a].Name, query) && !strings.EqualFold(out[b].Name, query)
	})
	if out == nil {
		out = []types.SymbolInformation{}
	}

	x.logger.Debug("Answered workspace symbol query", "query", query, "count", len(out))
	return out, nil
}

func (x *LocalIndex) fileDeclarations(ctx context.Context, path, needle string) []types.SymbolInformation {
	src, err := os.ReadFile(path)
	if err != nil {
		x.logger.Warn("Skipping unreadable file", "path", path, "error", err)
		return nil
	}
	if needle != "" && !bytes.Contains(bytes.ToLower(src), []byte(needle)) {
		return nil
	}

	uri := types.PathToURI(path)
	tree, err := x.parsers.Parse(ctx, uri, src)
	if err != nil {
		x.logger.Warn("Skipping unparsable file", "path", path, "error", err)
		return nil
	}
	defer tree.Close()

	return Declarations(tree, needle)
}

// Declarations lists the declarations in tree whose lower-cased name
// contains needle. An empty needle matches everything.
func Declarations(tree *scanner.SyntaxTree, needle string) []types.SymbolInformation {
	var out []types.SymbolInformation
	scanner.Walk(tree.Root(), func(n *sitter.Node) {
		kind, ok := declarationKinds[n.Type()]
		if !ok {
			return
		}
		for _, nameNode := range declaredNames(n) {
			name := nameNode.Content(tree.Source)
			if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
				continue
			}
			out = append(out, types.SymbolInformation{
				Name:          name,
				Kind:          kind,
				ContainerName: containerName(n, tree.Source),
				Location: types.Location{
					URI:   tree.URI,
					Range: nodeRange(tree, nameNode),
				},
			})
		}
	})
	return out
}

func declaredNames(decl *sitter.Node) []*sitter.Node {
	if name := decl.ChildByFieldName("name"); name != nil {
		return []*sitter.Node{name}
	}
	var names []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		if name := child.ChildByFieldName("name"); name != nil {
			names = append(names, name)
		}
	}
	return names
}

func containerName(decl *sitter.Node, src []byte) string {
	for cur := decl.Parent(); cur != nil; cur = cur.Parent() {
		kind, ok := declarationKinds[cur.Type()]
		if !ok || !results.NewSymbolKind(kind).IsType() {
			continue
		}
		if name := cur.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}
	return ""
}

func nodeRange(tree *scanner.SyntaxTree, n *sitter.Node) types.Range {
	startLine, startCol := tree.Lines.OffsetToPosition(int(n.StartByte()))
	endLine, endCol := tree.Lines.OffsetToPosition(int(n.EndByte()))
	return types.Range{
		Start: types.Position{Line: startLine, Character: startCol},
		End:   types.Position{Line: endLine, Character: endCol},
	}
}
