package results

import "github.com/averycrespi/annols/pkg/types"

// FindAnnotationUsagesToolResult represents the result of the find annotation usages tool
type FindAnnotationUsagesToolResult struct {
	Message   string                       `json:"message"`
	Arguments FindAnnotationUsagesToolArgs `json:"arguments"`
	Usages    []AnnotationUsage            `json:"usages,omitempty"`
}

// FindAnnotationUsagesToolArgs represents the arguments for the find annotation usages tool
type FindAnnotationUsagesToolArgs struct {
	AnnotationName string `json:"annotation_name"`
}

// AnnotationUsage is one annotation occurrence in display coordinates.
type AnnotationUsage struct {
	Annotation    string                `json:"annotation"`
	Shape         types.AnnotationShape `json:"shape"`
	ElementKind   types.ElementKind     `json:"element_kind"`
	ElementName   string                `json:"element_name,omitempty"`
	Location      SymbolLocation        `json:"location"`
	Anchor        SymbolAnchor          `json:"anchor"`
	RawSourceText string                `json:"raw_source_text"`
	Source        *SourceContext        `json:"source,omitempty"`
}

// NewAnnotationUsage converts occ, found in file, to display form.
func NewAnnotationUsage(occ types.AnnotationOccurrence, file string) AnnotationUsage {
	location := NewSymbolLocation(file, occ.Location.Position())
	return AnnotationUsage{
		Annotation:    occ.AnnotationName,
		Shape:         occ.Shape,
		ElementKind:   occ.EnclosingElementKind,
		ElementName:   occ.EnclosingElementName,
		Location:      location,
		Anchor:        location.ToAnchor(),
		RawSourceText: occ.RawSourceText,
	}
}
