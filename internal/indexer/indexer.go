package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"invest-guru/internal/chunker"
	"invest-guru/internal/helper"
	"invest-guru/internal/models"
	"invest-guru/internal/parser"
)

// VectorStore persists embedded chunks. Implemented by chromemdb.VectorDBManager
// and db.Store.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []models.IndexedChunk) error
	Fetch(ctx context.Context, where map[string]string) ([]models.IndexedChunk, error)
	Delete(ctx context.Context, ids ...string) error
	Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// Indexer runs the ingestion pipeline: extract, chunk, embed, store
type Indexer struct {
	vectors         VectorStore
	embedder        embeddings.Embedder
	chunker         *chunker.Chunker
	extractor       parser.Extractor
	replaceExisting bool
	extensions      []string
}

type Option func(*Indexer)

// WithExtractor replaces the default file extractor
func WithExtractor(e parser.Extractor) Option {
	return func(ix *Indexer) { ix.extractor = e }
}

// WithReplaceExisting controls whether ProcessPDF deletes the previous chunks
// of a source before adding the new ones
func WithReplaceExisting(replace bool) Option {
	return func(ix *Indexer) { ix.replaceExisting = replace }
}

// WithExtensions sets the file extensions picked up by ProcessDirectory
func WithExtensions(exts ...string) Option {
	return func(ix *Indexer) {
		if len(exts) > 0 {
			ix.extensions = exts
		}
	}
}

func New(store VectorStore, embedder embeddings.Embedder, ch *chunker.Chunker, opts ...Option) *Indexer {
	ix := &Indexer{
		vectors:         store,
		embedder:        embedder,
		chunker:         ch,
		extractor:       parser.FileExtractor{},
		replaceExisting: true,
		extensions:      []string{".pdf"},
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Add embeds and stores the chunks under fresh ids. Adding the same chunk
// twice stores it twice.
func (ix *Indexer) Add(ctx context.Context, chunks []models.ChunkRecord) (int, error) {
	indexed, err := ix.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}
	return ix.save(ctx, indexed)
}

// embed assigns ids and vectors to chunks without writing them
func (ix *Indexer) embed(ctx context.Context, chunks []models.ChunkRecord) ([]models.IndexedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	indexed := make([]models.IndexedChunk, 0, len(chunks))
	for i, c := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		indexed = append(indexed, models.IndexedChunk{
			ID:        id,
			Content:   c.Content,
			Metadata:  c.StoreMetadata(),
			Embedding: vectors[i],
		})
	}
	return indexed, nil
}

func (ix *Indexer) save(ctx context.Context, indexed []models.IndexedChunk) (int, error) {
	if len(indexed) == 0 {
		return 0, nil
	}
	if err := ix.vectors.Upsert(ctx, indexed); err != nil {
		return 0, err
	}
	log.Debug().Int("chunks", len(indexed)).Msg("Stored chunks")
	return len(indexed), nil
}

// DeleteBySource removes every chunk whose source equals name exactly and
// returns how many were removed
func (ix *Indexer) DeleteBySource(ctx context.Context, name string) (int, error) {
	found, err := ix.vectors.Fetch(ctx, map[string]string{models.MetaSource: name})
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = c.ID
	}
	if err := ix.vectors.Delete(ctx, ids...); err != nil {
		return 0, err
	}
	log.Info().Str("source", name).Int("chunks", len(ids)).Msg("Deleted source")
	return len(ids), nil
}

// ListSources summarizes the indexed documents, sorted by name
func (ix *Indexer) ListSources(ctx context.Context) ([]models.SourceSummary, error) {
	all, err := ix.vectors.Fetch(ctx, nil)
	if err != nil {
		return nil, err
	}

	type acc struct {
		summary models.SourceSummary
		pages   map[int]struct{}
	}
	bySource := map[string]*acc{}
	for _, c := range all {
		a, ok := bySource[c.Source()]
		if !ok {
			a = &acc{
				summary: models.SourceSummary{Name: c.Source(), Module: c.Module()},
				pages:   map[int]struct{}{},
			}
			bySource[c.Source()] = a
		}
		a.summary.ChunkCount++
		a.pages[c.Page()] = struct{}{}
	}

	sources := make([]models.SourceSummary, 0, len(bySource))
	for _, a := range bySource {
		a.summary.Pages = len(a.pages)
		sources = append(sources, a.summary)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

// Prepare extracts and chunks a file without touching the store
func (ix *Indexer) Prepare(path string) ([]models.ChunkRecord, error) {
	pages, err := ix.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	return ix.chunker.Chunk(pages)
}

// ProcessPDF ingests one document and returns the number of chunks stored.
// Previous chunks of the same source are only removed once the new ones are
// embedded.
func (ix *Indexer) ProcessPDF(ctx context.Context, path string) (int, error) {
	chunks, err := ix.Prepare(path)
	if err != nil {
		return 0, err
	}
	indexed, err := ix.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	source := filepath.Base(path)
	if ix.replaceExisting {
		removed, err := ix.DeleteBySource(ctx, source)
		if err != nil {
			return 0, err
		}
		if removed > 0 {
			log.Debug().Str("source", source).Int("chunks", removed).Msg("Replacing previous chunks")
		}
	}

	n, err := ix.save(ctx, indexed)
	if err != nil {
		return 0, err
	}
	log.Info().Str("source", source).Int("chunks", n).Msg("Processed document")
	return n, nil
}

// BatchError collects the files a directory run skipped because they could
// not be extracted
type BatchError struct {
	Failures map[string]error
}

func (e *BatchError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failures[name])
	}
	return fmt.Sprintf("%d file(s) failed: %s", len(names), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// ProcessDirectory ingests every matching file of dir in name order. Files
// that fail extraction are logged and reported in a *BatchError next to the
// partial result; any other failure stops the run.
func (ix *Indexer) ProcessDirectory(ctx context.Context, dir string) (map[string]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	results := map[string]int{}
	failures := map[string]error{}
	for _, entry := range entries {
		if entry.IsDir() || !helper.HasExtension(entry.Name(), ix.extensions...) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		n, err := ix.ProcessPDF(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			var extractErr *models.ExtractionError
			if errors.As(err, &extractErr) {
				log.Error().Err(err).Str("source", entry.Name()).Msg("Skipping document")
				failures[entry.Name()] = err
				continue
			}
			return results, fmt.Errorf("failed to process %s: %w", entry.Name(), err)
		}
		results[entry.Name()] = n
	}

	log.Info().Str("dir", dir).Int("documents", len(results)).Int("failed", len(failures)).Msg("Processed directory")
	if len(failures) > 0 {
		return results, &BatchError{Failures: failures}
	}
	return results, nil
}

// Reindex clears the store and ingests dir from scratch
func (ix *Indexer) Reindex(ctx context.Context, dir string) (map[string]int, error) {
	if err := ix.vectors.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear index: %w", err)
	}
	return ix.ProcessDirectory(ctx, dir)
}

// Search returns the k chunks most similar to query, best first
func (ix *Indexer) Search(ctx context.Context, query string, k int, where map[string]string) ([]models.ScoredChunk, error) {
	vector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := ix.vectors.Search(ctx, vector, k, where)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits, nil
}

// Count returns the number of stored chunks
func (ix *Indexer) Count(ctx context.Context) (int, error) {
	return ix.vectors.Count(ctx)
}
