package scanner

import "sort"

// LineIndex maps byte offsets of one file to 0-based line/column pairs.
type LineIndex struct {
	starts []int
	size   int
}

// NewLineIndex records the start offset of every line in src.
// Only '\n' terminates a line; a preceding '\r' stays part of the line.
func NewLineIndex(src []byte) *LineIndex {
	starts := make([]int, 1, len(src)/32+1)
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts, size: len(src)}
}

// OffsetToPosition returns the 0-based line and column of offset.
// The column counts bytes from the start of the line. Offsets outside
// [0, len(src)] are clamped.
func (li *LineIndex) OffsetToPosition(offset int) (line, column int) {
	if offset < 0 {
		offset = 0
	}
	if offset > li.size {
		offset = li.size
	}
	// First line start strictly greater than offset, minus one.
	line = sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return line, offset - li.starts[line]
}
