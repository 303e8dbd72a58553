package workspace

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/averycrespi/annols/pkg/types"
)

// Walker enumerates candidate source files below a workspace root.
type Walker struct {
	extensions map[string]struct{}
	exclude    []string
	logger     *slog.Logger
}

// NewWalker creates a walker for the configured extensions and exclude globs.
// Invalid glob patterns are logged and ignored.
func NewWalker(cfg types.SearchConfig, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Walker{
		extensions: make(map[string]struct{}, len(cfg.Extensions)),
		logger:     logger,
	}
	for _, ext := range cfg.Extensions {
		w.extensions[strings.ToLower(ext)] = struct{}{}
	}
	if len(w.extensions) == 0 {
		w.extensions[".java"] = struct{}{}
	}
	for _, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			logger.Warn("Ignoring invalid exclude pattern", "pattern", pattern)
			continue
		}
		w.exclude = append(w.exclude, pattern)
	}
	return w
}

// IsSource reports whether path has one of the walker's source extensions.
func (w *Walker) IsSource(path string) bool {
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Excluded reports whether the slash-separated path relative to the root
// matches an exclude pattern.
func (w *Walker) Excluded(rel string) bool {
	for _, pattern := range w.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Files returns a lazy, single-pass sequence of source file paths below root
// in lexical depth-first order. Unreadable entries are logged and skipped.
// The walk stops as soon as the consumer stops or ctx is done.
func (w *Walker) Files(ctx context.Context, root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == root && d == nil {
					w.logger.Error("Cannot walk workspace root", "root", root, "error", err)
					return filepath.SkipAll
				}
				w.logger.Warn("Skipping unreadable entry", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if path != root {
				rel, relErr := filepath.Rel(root, path)
				if relErr == nil && w.Excluded(filepath.ToSlash(rel)) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}

			if d.IsDir() || !w.IsSource(path) {
				return nil
			}
			if !d.Type().IsRegular() && !isRegularTarget(path) {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn("Workspace walk ended early", "root", root, "error", err)
		}
	}
}

// isRegularTarget follows a symlink and reports whether it points at a regular file.
func isRegularTarget(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ValidateRoot checks that root exists, is a directory and can be listed.
func ValidateRoot(root string) error {
	if root == "" {
		return types.Errorf(types.KindInvalidArgument, "validate root", "workspace root is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return types.NewError(types.KindInvalidArgument, "validate root", err)
	}
	if !info.IsDir() {
		return types.Errorf(types.KindInvalidArgument, "validate root", "workspace root %s is not a directory", root)
	}
	f, err := os.Open(root)
	if err != nil {
		return types.NewError(types.KindInvalidArgument, "validate root", err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return types.NewError(types.KindInvalidArgument, "validate root", err)
	}
	return nil
}
