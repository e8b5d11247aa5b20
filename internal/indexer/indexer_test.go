package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invest-guru/internal/chromemdb"
	"invest-guru/internal/chunker"
	"invest-guru/internal/config"
	"invest-guru/internal/models"
	"invest-guru/internal/parser"
)

const dim = 16

// hashEmbedder is a deterministic bag of words embedder
type hashEmbedder struct {
	fail  error
	calls int
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, dim)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[1+int(h.Sum32()%(dim-1))]++
	}
	return v
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return e.vector(text), nil
}

// fakeExtractor serves pages by base filename; unknown names fail extraction
type fakeExtractor map[string][]string

func (f fakeExtractor) Extract(path string) ([]models.PageRecord, error) {
	name := filepath.Base(path)
	texts, ok := f[name]
	if !ok {
		return nil, &models.ExtractionError{Path: path, Err: errors.New("corrupt file")}
	}
	pages := make([]models.PageRecord, len(texts))
	for i, text := range texts {
		pages[i] = models.PageRecord{
			Content: text,
			PageMetadata: models.PageMetadata{
				Source: name,
				Page:   i + 1,
				Module: parser.ModuleFromFilename(name),
			},
		}
	}
	return pages, nil
}

func newTestIndexer(t *testing.T, embedder *hashEmbedder, opts ...Option) (*Indexer, *chromemdb.VectorDBManager) {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager("", "test", true, false, "")
	require.NoError(t, err)
	ch, err := chunker.New(1000, 200, config.StrategyRecursive)
	require.NoError(t, err)
	return New(store, embedder, ch, opts...), store
}

func records(source string, n int) []models.ChunkRecord {
	out := make([]models.ChunkRecord, n)
	for i := range out {
		out[i] = models.ChunkRecord{
			Content:  fmt.Sprintf("%s trecho %d", source, i),
			Metadata: models.PageMetadata{Source: source, Page: i/2 + 1, Module: models.UnknownModule},
			Index:    i,
		}
	}
	return out
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestDeleteBySource(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t, &hashEmbedder{})

	n, err := ix.Add(ctx, records("A.pdf", 7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	n, err = ix.Add(ctx, records("B.pdf", 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := ix.DeleteBySource(ctx, "A.pdf")
	require.NoError(t, err)
	assert.Equal(t, 7, removed)

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	sources, err := ix.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "B.pdf", sources[0].Name)
	assert.Equal(t, 3, sources[0].ChunkCount)
}

func TestDeleteUnknownSource(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t, &hashEmbedder{})

	removed, err := ix.DeleteBySource(ctx, "nada.pdf")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = ix.Add(ctx, records("A.pdf", 2))
	require.NoError(t, err)

	// source match is exact
	removed, err = ix.DeleteBySource(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	count, _ := ix.Count(ctx)
	assert.Equal(t, 2, count)
}

func TestAddIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndexer(t, &hashEmbedder{})

	for i := 0; i < 2; i++ {
		_, err := ix.Add(ctx, records("A.pdf", 2))
		require.NoError(t, err)
	}

	all, err := store.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)

	ids := map[string]bool{}
	for _, c := range all {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 4)
}

func TestAddEmpty(t *testing.T) {
	embedder := &hashEmbedder{}
	ix, _ := newTestIndexer(t, embedder)

	n, err := ix.Add(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, embedder.calls)
}

func TestAddEmbeddingFailure(t *testing.T) {
	ix, _ := newTestIndexer(t, &hashEmbedder{fail: errors.New("provider down")})

	_, err := ix.Add(context.Background(), records("A.pdf", 1))
	assert.ErrorContains(t, err, "provider down")
}

func TestListSourcesCounts(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t, &hashEmbedder{})

	// interleaved insertion order does not affect the summary
	_, err := ix.Add(ctx, append(records("Modulo 3.pdf", 3), records("Apostila.pdf", 5)...))
	require.NoError(t, err)
	_, err = ix.Add(ctx, records("Modulo 3.pdf", 1))
	require.NoError(t, err)

	sources, err := ix.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, models.SourceSummary{Name: "Apostila.pdf", Module: models.UnknownModule, Pages: 3, ChunkCount: 5}, sources[0])
	assert.Equal(t, models.SourceSummary{Name: "Modulo 3.pdf", Module: models.UnknownModule, Pages: 2, ChunkCount: 4}, sources[1])
}

func TestProcessPDFTagsModule(t *testing.T) {
	ctx := context.Background()
	extractor := fakeExtractor{"Modulo 2 - Intro.pdf": {"Introdução aos investimentos.", "Juros compostos."}}
	ix, store := newTestIndexer(t, &hashEmbedder{}, WithExtractor(extractor))

	n, err := ix.ProcessPDF(ctx, "/data/pdfs/Modulo 2 - Intro.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := store.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, c := range all {
		assert.Equal(t, "Módulo 2", c.Module())
		assert.Equal(t, "Modulo 2 - Intro.pdf", c.Source())
	}

	sources, err := ix.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Módulo 2", sources[0].Module)
	assert.Equal(t, 2, sources[0].Pages)
}

func TestProcessPDFSplitsPagesAndTagsModule(t *testing.T) {
	ctx := context.Background()
	page := strings.Repeat("A", 50)
	extractor := fakeExtractor{"Modulo 2.pdf": {page, page, page}}

	store, err := chromemdb.NewVectorDBManager("", "test", true, false, "")
	require.NoError(t, err)
	ch, err := chunker.New(20, 5, config.StrategyRecursive)
	require.NoError(t, err)
	ix := New(store, &hashEmbedder{}, ch, WithExtractor(extractor))

	n, err := ix.ProcessPDF(ctx, "Modulo 2.pdf")
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	all, err := store.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 9)
	perPage := map[int]int{}
	for _, c := range all {
		assert.Equal(t, "Módulo 2", c.Module())
		perPage[c.Page()]++
	}
	assert.Equal(t, map[int]int{1: 3, 2: 3, 3: 3}, perPage)

	sources, err := ix.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, models.SourceSummary{Name: "Modulo 2.pdf", Module: "Módulo 2", Pages: 3, ChunkCount: 9}, sources[0])
}

func TestProcessPDFReplacesPreviousChunks(t *testing.T) {
	ctx := context.Background()
	extractor := fakeExtractor{"a.pdf": {"página um", "página dois"}}

	ix, _ := newTestIndexer(t, &hashEmbedder{}, WithExtractor(extractor))
	for i := 0; i < 2; i++ {
		_, err := ix.ProcessPDF(ctx, "a.pdf")
		require.NoError(t, err)
	}
	count, _ := ix.Count(ctx)
	assert.Equal(t, 2, count)

	appendOnly, _ := newTestIndexer(t, &hashEmbedder{}, WithExtractor(extractor), WithReplaceExisting(false))
	for i := 0; i < 2; i++ {
		_, err := appendOnly.ProcessPDF(ctx, "a.pdf")
		require.NoError(t, err)
	}
	count, _ = appendOnly.Count(ctx)
	assert.Equal(t, 4, count)
}

func TestProcessPDFKeepsPreviousChunksWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	embedder := &hashEmbedder{}
	ix, store := newTestIndexer(t, embedder, WithExtractor(fakeExtractor{"a.pdf": {"página um", "página dois"}}))

	_, err := ix.ProcessPDF(ctx, "a.pdf")
	require.NoError(t, err)
	before, err := store.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, before, 2)

	embedder.fail = errors.New("provider down")
	_, err = ix.ProcessPDF(ctx, "a.pdf")
	assert.ErrorContains(t, err, "provider down")

	after, err := store.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestProcessPDFExtractionErrorLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t, &hashEmbedder{}, WithExtractor(fakeExtractor{}))
	_, err := ix.Add(ctx, records("broken.pdf", 2))
	require.NoError(t, err)

	_, err = ix.ProcessPDF(ctx, "broken.pdf")
	var extractErr *models.ExtractionError
	require.True(t, errors.As(err, &extractErr))

	count, _ := ix.Count(ctx)
	assert.Equal(t, 2, count)
}

func TestProcessDirectoryPartialFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "broken.pdf", "c.PDF", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	extractor := fakeExtractor{
		"a.pdf":     {"primeira página", "segunda página"},
		"c.PDF":     {"única página"},
		"notes.txt": {"ignorado"},
	}
	ix, _ := newTestIndexer(t, &hashEmbedder{}, WithExtractor(extractor))

	results, err := ix.ProcessDirectory(ctx, dir)
	assert.Equal(t, map[string]int{"a.pdf": 2, "c.PDF": 1}, results)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr), "expected BatchError, got %v", err)
	require.Len(t, batchErr.Failures, 1)
	assert.Contains(t, batchErr.Failures, "broken.pdf")
	assert.Contains(t, err.Error(), "broken.pdf")

	var extractErr *models.ExtractionError
	assert.True(t, errors.As(err, &extractErr))

	count, _ := ix.Count(ctx)
	assert.Equal(t, 3, count)
}

func TestProcessDirectoryExtensions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "b.md")

	extractor := fakeExtractor{"a.pdf": {"pdf"}, "b.md": {"markdown"}}
	ix, _ := newTestIndexer(t, &hashEmbedder{}, WithExtractor(extractor), WithExtensions(".pdf", ".md"))

	results, err := ix.ProcessDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.pdf": 1, "b.md": 1}, results)
}

func TestProcessDirectoryStopsOnEmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf")
	ix, _ := newTestIndexer(t, &hashEmbedder{fail: errors.New("quota exceeded")}, WithExtractor(fakeExtractor{"a.pdf": {"texto"}}))

	_, err := ix.ProcessDirectory(context.Background(), dir)
	require.Error(t, err)
	var batchErr *BatchError
	assert.False(t, errors.As(err, &batchErr))
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestProcessDirectoryMissing(t *testing.T) {
	ix, _ := newTestIndexer(t, &hashEmbedder{})
	_, err := ix.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	touch(t, dir, "a.pdf")

	ix, _ := newTestIndexer(t, &hashEmbedder{}, WithExtractor(fakeExtractor{"a.pdf": {"um", "dois"}}))
	_, err := ix.Add(ctx, records("removido.pdf", 5))
	require.NoError(t, err)

	results, err := ix.Reindex(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.pdf": 2}, results)

	sources, err := ix.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "a.pdf", sources[0].Name)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t, &hashEmbedder{})

	_, err := ix.Add(ctx, []models.ChunkRecord{
		{Content: "tesouro selic liquidez diária", Metadata: models.PageMetadata{Source: "a.pdf", Page: 1, Module: "Módulo 1"}},
		{Content: "ações pagam dividendos", Metadata: models.PageMetadata{Source: "b.pdf", Page: 1, Module: "Módulo 2"}},
		{Content: "fundos imobiliários rendem aluguéis", Metadata: models.PageMetadata{Source: "c.pdf", Page: 4, Module: "Módulo 2"}},
	})
	require.NoError(t, err)

	hits, err := ix.Search(ctx, "tesouro selic liquidez diária", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.pdf", hits[0].Source())
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)

	hits, err = ix.Search(ctx, "tesouro selic", 4, map[string]string{models.MetaModule: "Módulo 2"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "Módulo 2", h.Module())
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix, _ := newTestIndexer(t, &hashEmbedder{})
	hits, err := ix.Search(context.Background(), "qualquer coisa", 4, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
