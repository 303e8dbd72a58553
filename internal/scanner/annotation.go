package scanner

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/averycrespi/annols/pkg/types"
)

// Tree-sitter Java node types for the two annotation productions.
const (
	nodeMarkerAnnotation = "marker_annotation"
	nodeAnnotation       = "annotation"
)

// Span is a half-open byte range [Start, End) in a source file.
type Span struct {
	Start int
	End   int
}

// ElementValuePair is one "key = value" argument of a normal annotation.
type ElementValuePair struct {
	Key   string
	Value string
}

// AnnotationNode is the reduced form of every annotation shape.
// Pairs is set for ShapeNormal, Value for ShapeSingleValue.
type AnnotationNode struct {
	Kind    types.AnnotationShape
	NameRef string
	Span    Span
	Pairs   []ElementValuePair
	Value   string

	simpleName string
	node       *sitter.Node
}

// SimpleName returns the trailing identifier of the annotation name.
func (a AnnotationNode) SimpleName() string {
	return a.simpleName
}

// IsAnnotation reports whether n is an annotation node of any shape.
func IsAnnotation(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	t := n.Type()
	return t == nodeMarkerAnnotation || t == nodeAnnotation
}

// ReduceAnnotation converts an annotation node into an AnnotationNode.
// It returns false if n is not an annotation or has no name.
func ReduceAnnotation(n *sitter.Node, src []byte) (AnnotationNode, bool) {
	if !IsAnnotation(n) {
		return AnnotationNode{}, false
	}
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return AnnotationNode{}, false
	}

	a := AnnotationNode{
		Kind:       types.ShapeMarker,
		NameRef:    compact(nameNode.Content(src)),
		Span:       Span{Start: int(n.StartByte()), End: int(n.EndByte())},
		simpleName: simpleName(nameNode, src),
		node:       n,
	}
	if a.simpleName == "" {
		return AnnotationNode{}, false
	}
	if n.Type() == nodeMarkerAnnotation {
		return a, true
	}

	args := n.ChildByFieldName("arguments")
	if args == nil {
		// "@A()" parses as an annotation with an empty argument list.
		a.Kind = types.ShapeNormal
		return a, true
	}

	pairs := make([]ElementValuePair, 0, args.NamedChildCount())
	var single string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		switch child.Type() {
		case "element_value_pair":
			pair := ElementValuePair{}
			if key := child.ChildByFieldName("key"); key != nil {
				pair.Key = key.Content(src)
			}
			if value := child.ChildByFieldName("value"); value != nil {
				pair.Value = value.Content(src)
			}
			pairs = append(pairs, pair)
		case "comment", "line_comment", "block_comment":
		default:
			single = child.Content(src)
		}
	}
	switch {
	case len(pairs) > 0:
		a.Kind = types.ShapeNormal
		a.Pairs = pairs
	case single != "":
		a.Kind = types.ShapeSingleValue
		a.Value = single
	default:
		a.Kind = types.ShapeNormal
	}
	return a, true
}

// simpleName returns the identifier itself, or the last identifier of a
// scoped_identifier such as javax.persistence.Entity.
func simpleName(nameNode *sitter.Node, src []byte) string {
	for nameNode != nil && nameNode.Type() == "scoped_identifier" {
		nameNode = nameNode.ChildByFieldName("name")
	}
	if nameNode == nil {
		return ""
	}
	return strings.TrimSpace(nameNode.Content(src))
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
