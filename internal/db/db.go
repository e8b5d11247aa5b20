package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"invest-guru/internal/config"
	"invest-guru/internal/models"
)

type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source,notnull"`
	Page          int             `bun:"page,notnull"`
	Module        string          `bun:"module,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	StartIndex    int             `bun:"start_index,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

type scoredChunk struct {
	Chunk      `bun:",extend"`
	Similarity float32 `bun:"similarity"`
}

// metadata keys that map onto columns
var filterColumns = map[string]string{
	models.MetaSource: "source",
	models.MetaPage:   "page",
	models.MetaModule: "module",
	models.MetaChunk:  "chunk_index",
	models.MetaStart:  "start_index",
}

// Store keeps chunks in a Postgres table with a pgvector column
type Store struct {
	db        *bun.DB
	dimension int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with bun's pgdriver ("pg") or lib/pq ("postgres")
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return sql.Open("postgres", cfg.URL)
	case "pg", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
	return nil, &models.ConfigError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
}

// NewStore connects and makes sure the vector extension and table exist
func NewStore(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: NewDB(sqldb, cfg.Debug), dimension: cfg.Dimension}
	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := InitDB(ctx, s.db); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Chunk)(nil)).
		Index("chunks_source_idx").
		Column("source").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Upsert(ctx context.Context, chunks []models.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if s.dimension != 0 && len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s has dimension %d, table uses %d", c.ID, len(c.Embedding), s.dimension)
		}
		page, _ := strconv.Atoi(c.Metadata[models.MetaPage])
		index, _ := strconv.Atoi(c.Metadata[models.MetaChunk])
		start, _ := strconv.Atoi(c.Metadata[models.MetaStart])
		rows = append(rows, Chunk{
			ID:         c.ID,
			Content:    c.Content,
			Source:     c.Metadata[models.MetaSource],
			Page:       page,
			Module:     c.Metadata[models.MetaModule],
			ChunkIndex: index,
			StartIndex: start,
			Embedding:  pgvector.NewVector(c.Embedding),
		})
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("source = EXCLUDED.source").
		Set("page = EXCLUDED.page").
		Set("module = EXCLUDED.module").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("start_index = EXCLUDED.start_index").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

func applyFilter(q *bun.SelectQuery, where map[string]string) (*bun.SelectQuery, error) {
	for key, value := range where {
		col, ok := filterColumns[key]
		if !ok {
			return nil, fmt.Errorf("unsupported metadata filter %q", key)
		}
		q = q.Where("?::text = ?", bun.Ident("c."+col), value)
	}
	return q, nil
}

func (s *Store) Fetch(ctx context.Context, where map[string]string) ([]models.IndexedChunk, error) {
	var rows []Chunk
	q, err := applyFilter(s.db.NewSelect().Model(&rows), where)
	if err != nil {
		return nil, err
	}
	if err := q.Order("source", "page", "chunk_index").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}

	chunks := make([]models.IndexedChunk, 0, len(rows))
	for _, r := range rows {
		chunks = append(chunks, r.toIndexed())
	}
	return chunks, nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().
		Model((*Chunk)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Search orders by cosine distance, so similarity is 1 - distance
func (s *Store) Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(vector)

	var rows []scoredChunk
	q := s.db.NewSelect().
		Model(&rows).
		Column("id", "content", "source", "page", "module", "chunk_index", "start_index").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec)
	q, err := applyFilter(q, where)
	if err != nil {
		return nil, err
	}
	if err := q.OrderExpr("embedding <=> ?", vec).Limit(k).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		scored = append(scored, models.ScoredChunk{
			IndexedChunk: r.Chunk.toIndexed(),
			Similarity:   r.Similarity,
		})
	}
	return scored, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Chunk)(nil)).Count(ctx)
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.NewTruncateTable().Model((*Chunk)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

func (c Chunk) toIndexed() models.IndexedChunk {
	return models.IndexedChunk{
		ID:      c.ID,
		Content: c.Content,
		Metadata: map[string]string{
			models.MetaSource: c.Source,
			models.MetaPage:   strconv.Itoa(c.Page),
			models.MetaModule: c.Module,
			models.MetaChunk:  strconv.Itoa(c.ChunkIndex),
			models.MetaStart:  strconv.Itoa(c.StartIndex),
		},
		Embedding: c.Embedding.Slice(),
	}
}
