package scanner

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/averycrespi/annols/pkg/types"
)

// Scan returns every occurrence of the annotation named target in tree,
// in ascending offset order. Matching is exact and case-sensitive on the
// simple name; a qualified reference matches on its last segment.
func Scan(tree *SyntaxTree, target string) []types.AnnotationOccurrence {
	if tree == nil || target == "" {
		return nil
	}

	var occurrences []types.AnnotationOccurrence
	Walk(tree.Root(), func(n *sitter.Node) {
		a, ok := ReduceAnnotation(n, tree.Source)
		if !ok || a.SimpleName() != target {
			return
		}
		occurrences = append(occurrences, newOccurrence(tree, a))
	})
	return occurrences
}

func newOccurrence(tree *SyntaxTree, a AnnotationNode) types.AnnotationOccurrence {
	line, column := tree.Lines.OffsetToPosition(a.Span.Start)
	kind, name := EnclosingElement(a.node, tree.Source)
	return types.AnnotationOccurrence{
		AnnotationName: a.SimpleName(),
		Location: types.SourceLocation{
			FileURI: tree.URI,
			Line:    line,
			Column:  column,
		},
		StartOffset:          a.Span.Start,
		EnclosingElementKind: kind,
		EnclosingElementName: name,
		RawSourceText:        string(tree.Source[a.Span.Start:a.Span.End]),
		Shape:                a.Kind,
	}
}

// Walk visits every node below root, root included, exactly once in
// pre-order. Pre-order on a syntax tree is ascending start offset.
func Walk(root *sitter.Node, visit func(*sitter.Node)) {
	if root == nil {
		return
	}
	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()

	for {
		visit(cursor.CurrentNode())
		if cursor.GoToFirstChild() {
			continue
		}
		for !cursor.GoToNextSibling() {
			if !cursor.GoToParent() {
				return
			}
		}
	}
}
