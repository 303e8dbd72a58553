package scanner

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/averycrespi/annols/pkg/types"
)

var elementKinds = map[string]types.ElementKind{
	"class_declaration":           types.ElementType,
	"interface_declaration":       types.ElementType,
	"enum_declaration":            types.ElementType,
	"record_declaration":          types.ElementType,
	"annotation_type_declaration": types.ElementType,

	"method_declaration":                  types.ElementMethod,
	"constructor_declaration":             types.ElementMethod,
	"compact_constructor_declaration":     types.ElementMethod,
	"annotation_type_element_declaration": types.ElementMethod,

	"field_declaration":    types.ElementField,
	"constant_declaration": types.ElementField,
	"enum_constant":        types.ElementField,

	"local_variable_declaration": types.ElementVariable,
	"formal_parameter":           types.ElementVariable,
	"spread_parameter":           types.ElementVariable,
	"catch_formal_parameter":     types.ElementVariable,
	"resource":                   types.ElementVariable,
	"enhanced_for_statement":     types.ElementVariable,
}

// EnclosingElement walks parent links from n to the nearest declaration and
// returns its kind and name. Annotations outside any declaration (package
// annotations, for instance) yield ElementUnknown.
func EnclosingElement(n *sitter.Node, src []byte) (types.ElementKind, string) {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		kind, ok := elementKinds[cur.Type()]
		if !ok {
			continue
		}
		// A for-each declares its loop variable only in the header.
		if cur.Type() == "enhanced_for_statement" && inBody(n, cur) {
			continue
		}
		return kind, declarationName(cur, src)
	}
	return types.ElementUnknown, ""
}

func inBody(n, stmt *sitter.Node) bool {
	body := stmt.ChildByFieldName("body")
	return body != nil && n.StartByte() >= body.StartByte()
}

// declarationName extracts the declared identifier. Declarations with
// several declarators ("int a, b;") report all names joined by ", ".
func declarationName(decl *sitter.Node, src []byte) string {
	if name := decl.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}

	var names []string
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		if name := child.ChildByFieldName("name"); name != nil {
			names = append(names, name.Content(src))
		}
	}
	return strings.Join(names, ", ")
}
