package models

import (
	"strconv"
	"time"
)

// metadata keys stored alongside every indexed chunk
const (
	MetaSource = "source"
	MetaPage   = "page"
	MetaModule = "module"
	MetaChunk  = "chunk"
	MetaStart  = "start"
)

// UnknownModule is the module label used when the filename carries no module number
const UnknownModule = "Desconhecido"

// PageMetadata is the metadata extracted once per page and propagated to every chunk
type PageMetadata struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Module string `json:"module"`
}

// PageRecord is the text of one non-empty page of a document
type PageRecord struct {
	Content string `json:"content"`
	PageMetadata
}

// ChunkRecord is a window of page text produced by the chunker
type ChunkRecord struct {
	Content  string       `json:"content"`
	Metadata PageMetadata `json:"metadata"`
	// Index is the position of the chunk within its page, starting at 0
	Index int `json:"index"`
	// Start is the rune offset of the chunk inside the page content
	Start int `json:"start"`
}

// IndexedChunk is a chunk as persisted in a vector store
type IndexedChunk struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
}

// ScoredChunk is a similarity search hit
type ScoredChunk struct {
	IndexedChunk
	Similarity float32 `json:"similarity"`
}

// SourceSummary aggregates the chunks of one source document
type SourceSummary struct {
	Name       string `json:"name"`
	Module     string `json:"module"`
	Pages      int    `json:"pages"`
	ChunkCount int    `json:"chunk_count"`
}

// Answer is the result of one retrieval chain invocation
type Answer struct {
	Question        string        `json:"question"`
	StandaloneQuery string        `json:"standalone_query"`
	Text            string        `json:"answer"`
	UsedChunks      []ScoredChunk `json:"used_chunks"`
	Elapsed         time.Duration `json:"elapsed"`
}

// StoreMetadata flattens a chunk record into the string map stored with the vector
func (c ChunkRecord) StoreMetadata() map[string]string {
	return map[string]string{
		MetaSource: c.Metadata.Source,
		MetaPage:   strconv.Itoa(c.Metadata.Page),
		MetaModule: c.Metadata.Module,
		MetaChunk:  strconv.Itoa(c.Index),
		MetaStart:  strconv.Itoa(c.Start),
	}
}

// Source returns the source filename of the chunk
func (c IndexedChunk) Source() string { return c.Metadata[MetaSource] }

// Module returns the module label of the chunk
func (c IndexedChunk) Module() string { return c.Metadata[MetaModule] }

// Page returns the page number of the chunk, 0 when missing or malformed
func (c IndexedChunk) Page() int {
	page, err := strconv.Atoi(c.Metadata[MetaPage])
	if err != nil {
		return 0
	}
	return page
}
