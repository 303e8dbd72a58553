package results

import "github.com/averycrespi/annols/pkg/types"

// SymbolLocation represents the location of a symbol.
// Unlike types.Location, it contains a file (not a URI) and is 1-indexed (not 0-indexed).
type SymbolLocation struct {
	File        string `json:"file"`
	DisplayLine int    `json:"line"`
	DisplayChar int    `json:"character"`
}

// NewSymbolLocation converts a 0-indexed protocol position in file to display coordinates.
func NewSymbolLocation(file string, position types.Position) SymbolLocation {
	return SymbolLocation{
		File:        file,
		DisplayLine: position.Line + 1,
		DisplayChar: position.Character + 1,
	}
}

// ToAnchor creates a SymbolAnchor from this location (coordinates remain 1-indexed)
func (sl SymbolLocation) ToAnchor() SymbolAnchor {
	return NewSymbolAnchor(sl.File, sl.DisplayLine, sl.DisplayChar)
}
