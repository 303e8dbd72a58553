package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/internal/scanner"
	"github.com/averycrespi/annols/internal/symbols"
	"github.com/averycrespi/annols/internal/workspace"
	"github.com/averycrespi/annols/pkg/types"
)

const annotationSource = `package dev.snowdrop;

public @interface MySearchableAnnotation {
    String name() default "";
}
`

const userSource = `package dev.snowdrop;

@MySearchableAnnotation
public class User {
    @MySearchableAnnotation(name = "id")
    private Long id;

    // @MySearchableAnnotation in a comment
    private String note = "@MySearchableAnnotation";
}
`

type fakeIndex struct {
	hits     []symbols.Hit
	err      error
	calls    int
	onLookup func()
}

func (f *fakeIndex) Lookup(_ context.Context, _ string) ([]symbols.Hit, error) {
	f.calls++
	if f.onLookup != nil {
		f.onLookup()
	}
	return f.hits, f.err
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestOrchestrator(t *testing.T, index SymbolIndex, mutate func(*types.SearchConfig)) *Orchestrator {
	t.Helper()
	cfg := types.Config{}
	cfg.ApplyDefaults()
	cfg.Search.Workers = 4
	if mutate != nil {
		mutate(&cfg.Search)
	}
	parsers, err := scanner.NewParserPool(cfg.Search.ParserMode)
	require.NoError(t, err)
	t.Cleanup(parsers.Close)
	return New(index, workspace.NewWalker(cfg.Search, nil), parsers, cfg.Search, nil)
}

// userWorkspace lays out a definition file and one annotated class.
func userWorkspace(t *testing.T) (root, annotationPath, userPath string) {
	t.Helper()
	root = t.TempDir()
	annotationPath = writeFile(t, root, "src/dev/snowdrop/MySearchableAnnotation.java", annotationSource)
	userPath = writeFile(t, root, "src/dev/snowdrop/User.java", userSource)
	return root, annotationPath, userPath
}

func definitionHit(path string) symbols.Hit {
	return symbols.Hit{
		Name:    "MySearchableAnnotation",
		Kind:    results.SymbolKindInterface,
		FileURI: types.PathToURI(path),
	}
}

func TestSearch_FindsTypeAndFieldUsages(t *testing.T) {
	root, annotationPath, userPath := userWorkspace(t)
	index := &fakeIndex{hits: []symbols.Hit{definitionHit(annotationPath)}}

	result, err := newTestOrchestrator(t, index, nil).Search(context.Background(), types.SearchRequest{
		WorkspaceRoot:  root,
		AnnotationName: "MySearchableAnnotation",
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 1, index.calls)

	uri := types.PathToURI(userPath)

	assert.Equal(t, types.SourceLocation{FileURI: uri, Line: 2, Column: 0}, result[0].Location)
	assert.Equal(t, types.ElementType, result[0].EnclosingElementKind)
	assert.Equal(t, "User", result[0].EnclosingElementName)
	assert.Equal(t, "@MySearchableAnnotation", result[0].RawSourceText)

	assert.Equal(t, types.SourceLocation{FileURI: uri, Line: 4, Column: 4}, result[1].Location)
	assert.Equal(t, types.ElementField, result[1].EnclosingElementKind)
	assert.Equal(t, "id", result[1].EnclosingElementName)
	assert.Equal(t, `@MySearchableAnnotation(name = "id")`, result[1].RawSourceText)

	for _, occ := range result {
		assert.Equal(t, "MySearchableAnnotation", occ.AnnotationName)
	}
}

func TestSearch_NoUsagesIsEmptySuccess(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "Unused.java", `public @interface Unused {}`)
	writeFile(t, root, "Plain.java", "class Plain {}\n")

	index := &fakeIndex{hits: []symbols.Hit{{Name: "Unused", Kind: results.SymbolKindInterface, FileURI: types.PathToURI(path)}}}
	result, err := newTestOrchestrator(t, index, nil).Search(context.Background(), types.SearchRequest{
		WorkspaceRoot:  root,
		AnnotationName: "Unused",
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestSearch_SeededFilesAreScannedOnce(t *testing.T) {
	root, annotationPath, userPath := userWorkspace(t)
	index := &fakeIndex{hits: []symbols.Hit{
		definitionHit(annotationPath),
		{Name: "User", Kind: results.SymbolKindClass, FileURI: types.PathToURI(userPath)},
		{Name: "id", Kind: results.SymbolKindField, FileURI: types.PathToURI(userPath)},
		{Name: "MySearchableAnnotation", Kind: results.SymbolKindInterface, FileURI: "jdt://contents/rt.jar/MySearchableAnnotation.class"},
		{Name: "README", Kind: results.SymbolKindFile, FileURI: types.PathToURI(filepath.Join(root, "README.md"))},
	}}

	result, err := newTestOrchestrator(t, index, nil).Search(context.Background(), types.SearchRequest{
		WorkspaceRoot:  root,
		AnnotationName: "MySearchableAnnotation",
	})
	require.NoError(t, err)
	assert.Len(t, result, 2)

	type key struct {
		uri    string
		offset int
	}
	seen := make(map[key]bool)
	for _, occ := range result {
		k := key{occ.Location.FileURI, occ.StartOffset}
		assert.False(t, seen[k], "duplicate occurrence at %v", k)
		seen[k] = true
	}
}

func TestSearch_SeedsComeBeforeWalkedFiles(t *testing.T) {
	root := t.TempDir()
	first := writeFile(t, root, "a/First.java", "@Audit class First {}\n")
	second := writeFile(t, root, "b/Second.java", "@Audit class Second {}\n")

	index := &fakeIndex{hits: []symbols.Hit{{Name: "Second", Kind: results.SymbolKindClass, FileURI: types.PathToURI(second)}}}
	result, err := newTestOrchestrator(t, index, nil).Search(context.Background(), types.SearchRequest{
		WorkspaceRoot:  root,
		AnnotationName: "Audit",
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, types.PathToURI(second), result[0].Location.FileURI)
	assert.Equal(t, types.PathToURI(first), result[1].Location.FileURI)
}

func TestSearch_SymbolIndexFailureFallsBackToWalk(t *testing.T) {
	root, annotationPath, _ := userWorkspace(t)
	req := types.SearchRequest{WorkspaceRoot: root, AnnotationName: "MySearchableAnnotation"}

	healthy, err := newTestOrchestrator(t, &fakeIndex{hits: []symbols.Hit{definitionHit(annotationPath)}}, nil).
		Search(context.Background(), req)
	require.NoError(t, err)

	failing := &fakeIndex{err: types.NewError(types.KindUpstreamUnavailable, "workspace/symbol", errors.New("connection refused"))}
	fallback, err := newTestOrchestrator(t, failing, nil).Search(context.Background(), req)
	require.NoError(t, err)

	withoutIndex, err := newTestOrchestrator(t, nil, nil).Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, healthy, fallback)
	assert.Equal(t, healthy, withoutIndex)
	assert.Equal(t, 1, failing.calls)
}

func TestSearch_CancellationReturnsErrorNotPartialResult(t *testing.T) {
	root, annotationPath, _ := userWorkspace(t)
	req := types.SearchRequest{WorkspaceRoot: root, AnnotationName: "MySearchableAnnotation"}

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := newTestOrchestrator(t, nil, nil).Search(ctx, req)
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.KindCancelled))
		assert.Nil(t, result)
	})

	t.Run("cancelled during symbol lookup", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		index := &fakeIndex{hits: []symbols.Hit{definitionHit(annotationPath)}, onLookup: cancel}

		result, err := newTestOrchestrator(t, index, nil).Search(ctx, req)
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.KindCancelled))
		assert.Nil(t, result)
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		result, err := newTestOrchestrator(t, nil, nil).Search(ctx, req)
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.KindTimeout))
		assert.Nil(t, result)
	})
}

func TestSearch_InvalidArguments(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "A.java", "class A {}\n")

	tests := []struct {
		name string
		req  types.SearchRequest
	}{
		{name: "empty annotation name", req: types.SearchRequest{WorkspaceRoot: root}},
		{name: "missing root", req: types.SearchRequest{WorkspaceRoot: filepath.Join(root, "missing"), AnnotationName: "A"}},
		{name: "root is a file", req: types.SearchRequest{WorkspaceRoot: file, AnnotationName: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &fakeIndex{}
			_, err := newTestOrchestrator(t, index, nil).Search(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, types.IsKind(err, types.KindInvalidArgument))
			assert.Zero(t, index.calls)
		})
	}
}

func TestSearch_FileFailuresAreIsolated(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	root, _, userPath := userWorkspace(t)
	locked := writeFile(t, root, "src/dev/snowdrop/Locked.java", "@MySearchableAnnotation class Locked {}\n")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	result, err := newTestOrchestrator(t, nil, nil).Search(context.Background(), types.SearchRequest{
		WorkspaceRoot:  root,
		AnnotationName: "MySearchableAnnotation",
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	for _, occ := range result {
		assert.Equal(t, types.PathToURI(userPath), occ.Location.FileURI)
	}
}

func TestSearch_MalformedFileStillScanned(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Broken.java", "@Audit\nclass Good {}\n\nclass Broken {\n    void run( {\n}\n")

	result, err := newTestOrchestrator(t, nil, nil).Search(context.Background(), types.SearchRequest{
		WorkspaceRoot:  root,
		AnnotationName: "Audit",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result)
	assert.Equal(t, 0, result[0].Location.Line)
	assert.Equal(t, 0, result[0].Location.Column)
	assert.Equal(t, "Good", result[0].EnclosingElementName)
}

func TestSearch_SpacedAnnotationsAreFound(t *testing.T) {
	tests := []struct {
		name    string
		content string
		raw     string
	}{
		{name: "space after at sign", content: "@ Target\nclass A {}\n", raw: "@ Target"},
		{name: "newline after at sign", content: "@\nTarget\nclass A {}\n", raw: "@\nTarget"},
		{name: "comment after at sign", content: "@/* c */Target\nclass A {}\n", raw: "@/* c */Target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := writeFile(t, root, "A.java", tt.content)

			result, err := newTestOrchestrator(t, nil, nil).Search(context.Background(), types.SearchRequest{
				WorkspaceRoot:  root,
				AnnotationName: "Target",
			})
			require.NoError(t, err)
			require.Len(t, result, 1)
			assert.Equal(t, types.SourceLocation{FileURI: types.PathToURI(path), Line: 0, Column: 0}, result[0].Location)
			assert.Equal(t, types.ElementType, result[0].EnclosingElementKind)
			assert.Equal(t, "A", result[0].EnclosingElementName)
			assert.Equal(t, tt.raw, result[0].RawSourceText)
		})
	}
}

func TestSearch_OversizedFilesAreSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Small.java", "@Audit class Small {}\n")
	writeFile(t, root, "Big.java", "@Audit class Big {\n"+string(make([]byte, 256))+"}\n")

	orch := newTestOrchestrator(t, nil, func(cfg *types.SearchConfig) { cfg.MaxFileBytes = 64 })
	result, err := orch.Search(context.Background(), types.SearchRequest{WorkspaceRoot: root, AnnotationName: "Audit"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "Small", result[0].EnclosingElementName)
}

func TestSearch_DeterministicAcrossParserModes(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		writeFile(t, root, "pkg/"+name+".java", "@Audit\nclass "+name+" {\n    @Audit int x;\n}\n")
	}
	req := types.SearchRequest{WorkspaceRoot: root, AnnotationName: "Audit"}

	pooled, err := newTestOrchestrator(t, nil, nil).Search(context.Background(), req)
	require.NoError(t, err)
	shared, err := newTestOrchestrator(t, nil, func(cfg *types.SearchConfig) {
		cfg.ParserMode = types.ParserModeShared
	}).Search(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, pooled, 12)
	assert.Equal(t, pooled, shared)
	assert.Equal(t, "A", pooled[0].EnclosingElementName)
	assert.Equal(t, "x", pooled[1].EnclosingElementName)
	assert.Equal(t, "F", pooled[10].EnclosingElementName)
}
