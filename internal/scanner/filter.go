package scanner

import "bytes"

// MightContain is a cheap textual pre-check run before parsing.
//
// It may return true for files without a real usage (the name inside a
// comment or string literal) but never returns false for a file the
// scanner would report. Java allows whitespace and comments between '@'
// and the name, and qualified references such as @com.acme.Audit, so the
// check only requires an '@' somewhere and the bare name somewhere.
func MightContain(text []byte, target string) bool {
	if target == "" {
		return false
	}
	return bytes.IndexByte(text, '@') >= 0 && bytes.Contains(text, []byte(target))
}
