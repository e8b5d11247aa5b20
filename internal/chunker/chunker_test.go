package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invest-guru/internal/config"
	"invest-guru/internal/models"
)

const sampleText = `Renda fixa é uma classe de investimentos em que as regras de remuneração são definidas no momento da aplicação.

O Tesouro Direto permite comprar títulos públicos com pouco dinheiro. Os títulos mais comuns são o Tesouro Selic, o Tesouro Prefixado e o Tesouro IPCA+.
A liquidez diária do Tesouro Selic o torna adequado para a reserva de emergência.

CDBs são emitidos por bancos e contam com a garantia do FGC até o limite por CPF e instituição. LCIs e LCAs são isentas de imposto de renda para pessoas físicas.`

func page(content string, n int) models.PageRecord {
	return models.PageRecord{
		Content:      content,
		PageMetadata: models.PageMetadata{Source: "Modulo 1.pdf", Page: n, Module: "Módulo 1"},
	}
}

// rebuild lays every chunk at its start offset, which must leave no gaps
func rebuild(t *testing.T, chunks []models.ChunkRecord) string {
	t.Helper()
	var out []rune
	for _, c := range chunks {
		require.LessOrEqual(t, c.Start, len(out), "gap before chunk %d", c.Index)
		out = append(out[:c.Start], []rune(c.Content)...)
	}
	return string(out)
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equal to size", 10, 10},
		{"overlap above size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap, config.StrategyRecursive)
			var cfgErr *models.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
		})
	}

	_, err := New(10, 2, "semantic")
	assert.Error(t, err)
}

func TestChunkShortPageIsSingleChunk(t *testing.T) {
	c, err := New(1000, 200, "")
	require.NoError(t, err)

	chunks, err := c.Chunk([]models.PageRecord{page("Tesouro Selic", 4)})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Tesouro Selic", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 4, chunks[0].Metadata.Page)
	assert.Equal(t, "Módulo 1", chunks[0].Metadata.Module)
}

func TestChunkEmptyPage(t *testing.T) {
	c, err := New(100, 10, config.StrategyRecursive)
	require.NoError(t, err)

	chunks, err := c.Chunk([]models.PageRecord{page("", 1)})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkHardCutWithoutSeparators(t *testing.T) {
	c, err := New(20, 5, config.StrategyRecursive)
	require.NoError(t, err)

	chunks, err := c.Chunk([]models.PageRecord{page(strings.Repeat("A", 50), 1)})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, []int{0, 15, 30}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start})
	assert.Equal(t, strings.Repeat("A", 20), chunks[0].Content)
	assert.Equal(t, strings.Repeat("A", 20), chunks[1].Content)
	assert.Equal(t, strings.Repeat("A", 20), chunks[2].Content)
}

func TestChunkProperties(t *testing.T) {
	params := []struct{ size, overlap int }{
		{50, 0}, {50, 10}, {80, 20}, {120, 60}, {200, 199}, {1000, 200},
	}

	for _, p := range params {
		c, err := New(p.size, p.overlap, config.StrategyRecursive)
		require.NoError(t, err)

		pages := []models.PageRecord{page(sampleText, 1), page(string([]rune(sampleText)[:120]), 2)}
		chunks, err := c.Chunk(pages)
		require.NoError(t, err)

		byPage := map[int][]models.ChunkRecord{}
		for _, ch := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), p.size)
			assert.NotEmpty(t, ch.Content)
			byPage[ch.Metadata.Page] = append(byPage[ch.Metadata.Page], ch)
		}

		for _, pg := range pages {
			got := byPage[pg.Page]
			require.NotEmpty(t, got)
			assert.Equal(t, pg.Content, rebuild(t, got), "size=%d overlap=%d page=%d", p.size, p.overlap, pg.Page)

			for i := 1; i < len(got); i++ {
				prevEnd := got[i-1].Start + utf8.RuneCountInString(got[i-1].Content)
				shared := prevEnd - got[i].Start
				assert.GreaterOrEqual(t, shared, 0)
				assert.LessOrEqual(t, shared, p.overlap)
				assert.Equal(t, i, got[i].Index)
			}
		}
	}
}

func TestChunkPrefersParagraphBreaks(t *testing.T) {
	text := "Primeiro parágrafo curto.\n\nSegundo parágrafo um pouco maior que o primeiro."
	c, err := New(40, 0, config.StrategyRecursive)
	require.NoError(t, err)

	chunks, err := c.Chunk([]models.PageRecord{page(text, 1)})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Primeiro parágrafo curto.\n\n", chunks[0].Content)
}

func TestNewNormalizesStrategyName(t *testing.T) {
	c, err := New(120, 20, "LANGCHAIN")
	require.NoError(t, err)
	assert.Equal(t, config.StrategyLangchain, c.strategy)
}

func TestChunkIsDeterministic(t *testing.T) {
	c, err := New(90, 30, config.StrategyRecursive)
	require.NoError(t, err)

	first, err := c.Chunk([]models.PageRecord{page(sampleText, 1)})
	require.NoError(t, err)
	second, err := c.Chunk([]models.PageRecord{page(sampleText, 1)})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunkLangchainStrategy(t *testing.T) {
	c, err := New(120, 20, config.StrategyLangchain)
	require.NoError(t, err)

	chunks, err := c.Chunk([]models.PageRecord{page(sampleText, 7)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 120)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 7, ch.Metadata.Page)
		if ch.Start >= 0 {
			assert.True(t, strings.HasPrefix(string([]rune(sampleText)[ch.Start:]), ch.Content))
		}
	}
}
