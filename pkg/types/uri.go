package types

import (
	"net/url"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// PathToURI converts a filesystem path to a file:// URI. Relative paths are
// made absolute against the working directory.
func PathToURI(path string) string {
	if strings.HasPrefix(path, fileScheme) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// URIToPath converts a file:// URI to a filesystem path. Other strings are
// returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, fileScheme) {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, fileScheme)
	}
	return filepath.FromSlash(u.Path)
}

// NormalizeURI returns the canonical form of a file:// URI so that two
// spellings of the same file compare equal. Non-file URIs are returned as is.
func NormalizeURI(uri string) string {
	if !strings.HasPrefix(uri, fileScheme) {
		return uri
	}
	path := URIToPath(uri)
	if path == "" {
		return uri
	}
	return PathToURI(filepath.Clean(path))
}
