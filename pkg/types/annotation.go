package types

// ElementKind is the kind of declaration enclosing an annotation occurrence.
type ElementKind string

const (
	ElementType     ElementKind = "Type"
	ElementMethod   ElementKind = "Method"
	ElementField    ElementKind = "Field"
	ElementVariable ElementKind = "Variable"
	ElementUnknown  ElementKind = "Unknown"
)

// AnnotationShape is the syntactic form of an annotation.
type AnnotationShape string

const (
	ShapeMarker      AnnotationShape = "marker"       // @A
	ShapeNormal      AnnotationShape = "normal"       // @A(k = v, ...)
	ShapeSingleValue AnnotationShape = "single_value" // @A(v)
)

// SourceLocation is a 0-based point inside a file.
type SourceLocation struct {
	FileURI string `json:"fileUri"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// Position returns the location as an LSP position.
func (l SourceLocation) Position() Position {
	return Position{Line: l.Line, Character: l.Column}
}

// AnnotationOccurrence is one syntactic use of an annotation.
type AnnotationOccurrence struct {
	AnnotationName       string          `json:"annotationName"`
	Location             SourceLocation  `json:"location"`
	StartOffset          int             `json:"startOffset"`
	EnclosingElementKind ElementKind     `json:"enclosingElementKind"`
	EnclosingElementName string          `json:"enclosingElementName,omitempty"`
	RawSourceText        string          `json:"rawSourceText"`
	Shape                AnnotationShape `json:"shape"`
}

// SearchRequest asks for every usage of AnnotationName below WorkspaceRoot.
type SearchRequest struct {
	WorkspaceRoot  string `json:"workspaceRoot"`
	AnnotationName string `json:"annotationName"`
}

// SearchResult is the ordered list of occurrences for one request.
// An empty result is a valid answer.
type SearchResult []AnnotationOccurrence

// AnnotationLocation is the wire form of an occurrence returned by the
// find-annotated-classes command. Its range is a point (start == end).
type AnnotationLocation struct {
	FileURI              string      `json:"fileUri"`
	Range                Range       `json:"range"`
	AnnotationName       string      `json:"annotationName"`
	EnclosingElementKind ElementKind `json:"enclosingElementKind"`
	EnclosingElementName string      `json:"enclosingElementName,omitempty"`
	RawSourceText        string      `json:"rawSourceText"`
}

// Locations converts the result to its wire form, preserving order.
func (r SearchResult) Locations() []AnnotationLocation {
	out := make([]AnnotationLocation, 0, len(r))
	for _, occ := range r {
		pos := occ.Location.Position()
		out = append(out, AnnotationLocation{
			FileURI:              occ.Location.FileURI,
			Range:                Range{Start: pos, End: pos},
			AnnotationName:       occ.AnnotationName,
			EnclosingElementKind: occ.EnclosingElementKind,
			EnclosingElementName: occ.EnclosingElementName,
			RawSourceText:        occ.RawSourceText,
		})
	}
	return out
}
