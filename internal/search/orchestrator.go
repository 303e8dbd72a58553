package search

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/averycrespi/annols/internal/logging"
	"github.com/averycrespi/annols/internal/metrics"
	"github.com/averycrespi/annols/internal/scanner"
	"github.com/averycrespi/annols/internal/symbols"
	"github.com/averycrespi/annols/internal/workspace"
	"github.com/averycrespi/annols/pkg/types"
)

const op = "annotation search"

// SymbolIndex resolves a name to workspace symbols.
type SymbolIndex interface {
	Lookup(ctx context.Context, name string) ([]symbols.Hit, error)
}

// Orchestrator runs annotation searches over a workspace.
type Orchestrator struct {
	index   SymbolIndex
	walker  *workspace.Walker
	parsers *scanner.ParserPool
	cfg     types.SearchConfig
	logger  *slog.Logger
}

// New creates an orchestrator. index may be nil, in which case every search
// is a plain filesystem walk.
func New(index SymbolIndex, walker *workspace.Walker, parsers *scanner.ParserPool, cfg types.SearchConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		index:   index,
		walker:  walker,
		parsers: parsers,
		cfg:     cfg,
		logger:  logger,
	}
}

// candidate is a file scheduled for scanning, in discovery order.
type candidate struct {
	order int
	path  string
	uri   string
}

type fileResult struct {
	order       int
	occurrences []types.AnnotationOccurrence
}

// definitionState records what the symbol lookup said about the annotation type.
type definitionState int

const (
	definitionUnknown definitionState = iota
	definitionFound
	definitionMissing
)

// Search finds every usage of the annotation named in req below its
// workspace root. A cancelled or expired ctx yields an error, never a
// partial result.
func (o *Orchestrator) Search(ctx context.Context, req types.SearchRequest) (types.SearchResult, error) {
	start := time.Now()

	if req.AnnotationName == "" {
		return nil, o.fail(types.Errorf(types.KindInvalidArgument, op, "annotation name is empty"))
	}
	if err := workspace.ValidateRoot(req.WorkspaceRoot); err != nil {
		return nil, o.fail(err)
	}
	root, err := filepath.Abs(req.WorkspaceRoot)
	if err != nil {
		return nil, o.fail(types.NewError(types.KindInvalidArgument, op, err))
	}

	logger := o.logger.With("search_id", uuid.NewString(), "annotation", req.AnnotationName)
	ctx = logging.WithContext(ctx, logger)

	logger.Info("Searching for annotation usages", "root", root)

	seeds, state := o.lookup(ctx, req.AnnotationName)

	result, scanned, err := o.scan(ctx, root, req.AnnotationName, seeds)
	if err != nil {
		logger.Info("Annotation search stopped", "error", err)
		return nil, o.fail(err)
	}

	switch {
	case state == definitionUnknown:
		logger.Info("Annotation definition unknown, symbol index unavailable", "usages", len(result))
	case state == definitionMissing:
		logger.Warn("Annotation definition could not be located", "usages", len(result))
	case len(result) == 0:
		logger.Info("Annotation type located, zero usages")
	}

	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	metrics.OccurrencesTotal.Add(float64(len(result)))
	if len(result) == 0 {
		metrics.SearchesTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.SearchesTotal.WithLabelValues("ok").Inc()
	}

	logger.Info("Annotation search finished",
		"files", scanned,
		"usages", len(result),
		"duration", time.Since(start))
	return result, nil
}

func (o *Orchestrator) fail(err error) error {
	metrics.SearchesTotal.WithLabelValues(string(types.KindOf(err))).Inc()
	return err
}

// lookup asks the symbol index about name. Hits in source files become seed
// candidates. A lookup failure is logged and the search continues without
// seeds.
func (o *Orchestrator) lookup(ctx context.Context, name string) ([]string, definitionState) {
	logger := logging.FromContext(ctx)
	if o.index == nil {
		return nil, definitionUnknown
	}

	hits, err := o.index.Lookup(ctx, name)
	if err != nil {
		logger.Warn("Symbol lookup failed, falling back to filesystem walk", "error", err)
		metrics.SymbolLookupsTotal.WithLabelValues("fallback").Inc()
		return nil, definitionUnknown
	}

	state := definitionMissing
	var seeds []string
	for _, hit := range hits {
		if symbols.IsDefinition(hit, name) {
			state = definitionFound
			logger.Debug("Located annotation definition", "uri", hit.FileURI)
		}
		path := types.URIToPath(hit.FileURI)
		if path == hit.FileURI || !o.walker.IsSource(path) {
			continue
		}
		seeds = append(seeds, path)
	}

	if state == definitionFound {
		metrics.SymbolLookupsTotal.WithLabelValues("found").Inc()
	} else {
		metrics.SymbolLookupsTotal.WithLabelValues("not_found").Inc()
	}
	return seeds, state
}

// scan schedules the seeds followed by the walker's files on a bounded
// worker pool and merges the per-file occurrences.
func (o *Orchestrator) scan(ctx context.Context, root, name string, seeds []string) (types.SearchResult, int, error) {
	var (
		mu    sync.Mutex
		found []fileResult
	)

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)

	seen := make(map[string]struct{})
	order := 0
	schedule := func(path string) bool {
		if ctx.Err() != nil {
			return false
		}
		uri := types.NormalizeURI(types.PathToURI(path))
		if _, ok := seen[uri]; ok {
			return true
		}
		seen[uri] = struct{}{}

		c := candidate{order: order, path: path, uri: uri}
		order++
		g.Go(func() error {
			occurrences := o.scanFile(ctx, c, name)
			if len(occurrences) == 0 {
				return nil
			}
			mu.Lock()
			found = append(found, fileResult{order: c.order, occurrences: occurrences})
			mu.Unlock()
			return nil
		})
		return true
	}

	for _, path := range seeds {
		if !schedule(path) {
			break
		}
	}
	for path := range o.walker.Files(ctx, root) {
		if !schedule(path) {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := types.ContextError(ctx, op); err != nil {
		return nil, 0, err
	}
	return merge(found), order, nil
}

// scanFile reads, filters, parses and scans one candidate. Failures are
// logged and yield no occurrences.
func (o *Orchestrator) scanFile(ctx context.Context, c candidate, name string) []types.AnnotationOccurrence {
	if ctx.Err() != nil {
		return nil
	}
	logger := logging.FromContext(ctx)

	info, err := os.Stat(c.path)
	if err != nil {
		logger.Warn("Skipping unreadable file", "path", c.path, "error", types.NewError(types.KindIOFailure, "stat", err))
		metrics.FilesTotal.WithLabelValues("io_failure").Inc()
		return nil
	}
	if o.cfg.MaxFileBytes > 0 && info.Size() > o.cfg.MaxFileBytes {
		logger.Debug("Skipping oversized file", "path", c.path, "size", info.Size())
		metrics.FilesTotal.WithLabelValues("too_large").Inc()
		return nil
	}
	src, err := os.ReadFile(c.path)
	if err != nil {
		logger.Warn("Skipping unreadable file", "path", c.path, "error", types.NewError(types.KindIOFailure, "read", err))
		metrics.FilesTotal.WithLabelValues("io_failure").Inc()
		return nil
	}

	if !scanner.MightContain(src, name) {
		metrics.FilesTotal.WithLabelValues("filtered").Inc()
		return nil
	}

	tree, err := o.parsers.Parse(ctx, c.uri, src)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("Skipping unparsable file", "path", c.path, "error", err)
			metrics.FilesTotal.WithLabelValues("parse_failure").Inc()
		}
		return nil
	}
	defer tree.Close()
	if tree.HasErrors() {
		logger.Debug("File has syntax errors, scanning recovered tree", "path", c.path)
	}

	metrics.FilesTotal.WithLabelValues("scanned").Inc()
	return scanner.Scan(tree, name)
}

// merge orders file results by discovery and drops repeated
// (file, offset) pairs.
func merge(found []fileResult) types.SearchResult {
	sort.Slice(found, func(i, j int) bool { return found[i].order < found[j].order })

	type key struct {
		uri    string
		offset int
	}
	seen := make(map[key]struct{})
	result := types.SearchResult{}
	for _, f := range found {
		for _, occ := range f.occurrences {
			k := key{uri: occ.Location.FileURI, offset: occ.StartOffset}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			result = append(result, occ)
		}
	}
	return result
}
