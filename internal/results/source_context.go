package results

// SourceContext represents source code context around a symbol
type SourceContext struct {
	Lines []SourceLine `json:"lines"`
}

// SourceLine represents a line of source code
type SourceLine struct {
	Number    int    `json:"number"`
	Content   string `json:"content"`
	Highlight bool   `json:"highlight"`
}

// NewSourceContext builds a context from consecutive lines starting at the
// 1-indexed firstLine, highlighting highlightLine.
func NewSourceContext(lines []string, firstLine, highlightLine int) *SourceContext {
	out := make([]SourceLine, 0, len(lines))
	for i, content := range lines {
		number := firstLine + i
		out = append(out, SourceLine{
			Number:    number,
			Content:   content,
			Highlight: number == highlightLine,
		})
	}
	return &SourceContext{Lines: out}
}

// Highlighted returns the highlighted line, if any.
func (sc *SourceContext) Highlighted() (SourceLine, bool) {
	if sc == nil {
		return SourceLine{}, false
	}
	for _, line := range sc.Lines {
		if line.Highlight {
			return line, true
		}
	}
	return SourceLine{}, false
}
