package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreMetadata(t *testing.T) {
	c := ChunkRecord{
		Content:  "texto",
		Metadata: PageMetadata{Source: "Modulo 2 - Intro.pdf", Page: 3, Module: "Módulo 2"},
		Index:    1,
		Start:    800,
	}
	assert.Equal(t, map[string]string{
		MetaSource: "Modulo 2 - Intro.pdf",
		MetaPage:   "3",
		MetaModule: "Módulo 2",
		MetaChunk:  "1",
		MetaStart:  "800",
	}, c.StoreMetadata())
}

func TestIndexedChunkAccessors(t *testing.T) {
	c := IndexedChunk{Metadata: map[string]string{MetaSource: "a.pdf", MetaPage: "7", MetaModule: UnknownModule}}
	assert.Equal(t, "a.pdf", c.Source())
	assert.Equal(t, 7, c.Page())
	assert.Equal(t, "Desconhecido", c.Module())

	assert.Equal(t, 0, IndexedChunk{Metadata: map[string]string{MetaPage: "x"}}.Page())
	assert.Equal(t, 0, IndexedChunk{}.Page())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := assert.AnError
	assert.ErrorIs(t, &ExtractionError{Path: "a.pdf", Err: cause}, cause)
	assert.ErrorIs(t, &GenerationError{Stage: StageRetrieve, Err: cause}, cause)
	assert.Contains(t, (&GenerationError{Stage: StageRetrieve, Err: cause}).Error(), "retrieve")
	assert.Contains(t, (&ConfigError{Field: "rag.top_k", Reason: "must be positive"}).Error(), "rag.top_k")
}
