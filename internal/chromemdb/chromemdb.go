package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"invest-guru/internal/helper"
	"invest-guru/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations. Documents
// always carry embeddings computed by the caller.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	dbPath         string
	compress       bool
	encryptionKey  string
	manifest       manifest
}

var errNoEmbedding = errors.New("documents must carry precomputed embeddings")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// NewVectorDBManager opens (or creates) the store. With inMemory set nothing
// is written to dbPath.
func NewVectorDBManager(dbPath, collectionName string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
		dbPath = ""
	} else {
		if err := helper.CreateFolder(dbPath); err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:             db,
		collectionName: collectionName,
		dbPath:         dbPath,
		compress:       compress,
		encryptionKey:  encryptionKey,
	}
	if dbPath != "" {
		if m.manifest, err = loadManifest(dbPath); err != nil {
			return nil, err
		}
	}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenExisting opens a persisted store and fails with *models.IndexNotFoundError
// when nothing was ingested at dbPath yet
func OpenExisting(dbPath, collectionName string, compress bool, encryptionKey string) (*VectorDBManager, error) {
	if !helper.DirHasEntries(dbPath) {
		return nil, &models.IndexNotFoundError{Path: dbPath}
	}
	return NewVectorDBManager(dbPath, collectionName, false, compress, encryptionKey)
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Upsert adds the chunks; an existing id is overwritten
func (m *VectorDBManager) Upsert(ctx context.Context, chunks []models.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := m.checkDimension(len(chunks[0].Embedding)); err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != m.manifest.Dimension {
			return fmt.Errorf("chunk %s has dimension %d, index uses %d", c.ID, len(c.Embedding), m.manifest.Dimension)
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: c.Embedding,
		})
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) checkDimension(dim int) error {
	if dim == 0 {
		return errors.New("chunk has no embedding")
	}
	if m.manifest.Dimension == 0 {
		return m.SetDimension(dim)
	}
	return nil
}

// SetDimension records the embedding dimension of the index
func (m *VectorDBManager) SetDimension(dim int) error {
	if m.manifest.Dimension != 0 && m.manifest.Dimension != dim && m.collection.Count() > 0 {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d", dim, m.manifest.Dimension)
	}
	m.manifest.Dimension = dim
	if m.dbPath == "" {
		return nil
	}
	return saveManifest(m.dbPath, m.manifest)
}

// Fetch returns every chunk whose metadata matches where; a nil filter
// returns the whole collection
func (m *VectorDBManager) Fetch(ctx context.Context, where map[string]string) ([]models.IndexedChunk, error) {
	count := m.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if m.manifest.Dimension == 0 {
		return nil, errors.New("index dimension unknown, reindex the documents")
	}

	// chromem has no listing call: a unit probe vector with nResults equal to the
	// collection size returns every matching document
	probe := make([]float32, m.manifest.Dimension)
	probe[0] = 1
	results, err := m.collection.QueryEmbedding(ctx, probe, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}

	chunks := make([]models.IndexedChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, models.IndexedChunk{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
		})
	}
	return chunks, nil
}

// Delete removes documents by id
func (m *VectorDBManager) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Search performs a similarity search, most similar first
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]models.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	count := m.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if m.manifest.Dimension != 0 && len(vector) != m.manifest.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), m.manifest.Dimension)
	}
	k = min(k, count)

	results, err := m.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		scored = append(scored, models.ScoredChunk{
			IndexedChunk: models.IndexedChunk{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}
	return scored, nil
}

// Count returns the number of stored chunks
func (m *VectorDBManager) Count(context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Reset drops the collection and starts an empty one
func (m *VectorDBManager) Reset(context.Context) error {
	if err := m.DeleteCollection(); err != nil {
		return err
	}
	if _, err := m.GetOrCreateCollection(m.collectionName); err != nil {
		return err
	}
	m.manifest = manifest{}
	if m.dbPath == "" {
		return nil
	}
	return saveManifest(m.dbPath, m.manifest)
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	err := m.db.DeleteCollection(m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes the collection to a gob file, encrypted when a key is set
func (m *VectorDBManager) Export(ctx context.Context, filePath string) error {
	if filePath == "" {
		return errors.New("export file path is required")
	}

	log.Debug().Str("collection", m.collectionName).Str("file", filePath).Bool("compress", m.compress).Bool("encrypted", m.encryptionKey != "").Msg("Exporting collection")
	err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the collection from a file written by Export. The embedding
// dimension is unknown afterwards until SetDimension or the next Upsert.
func (m *VectorDBManager) Import(ctx context.Context, filePath string) error {
	err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.collectionName, noEmbedding)
	if c == nil {
		return fmt.Errorf("collection %s missing from %s", m.collectionName, filePath)
	}
	m.collection = c
	return nil
}
