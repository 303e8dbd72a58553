package results

import (
	"fmt"
	"path/filepath"
)

const anchorScheme = "java"

// SymbolAnchor is a copyable reference to a display location, formatted as
// java://FILE#LINE:CHAR with a slash-separated FILE.
type SymbolAnchor string

// NewSymbolAnchor creates a new SymbolAnchor from a file, display line, and display character
func NewSymbolAnchor(file string, displayLine int, displayChar int) SymbolAnchor {
	return SymbolAnchor(fmt.Sprintf("%s://%s#%d:%d", anchorScheme, filepath.ToSlash(file), displayLine, displayChar))
}

// String returns the string representation of the anchor
func (a SymbolAnchor) String() string {
	return string(a)
}
