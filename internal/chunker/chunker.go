package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"

	"invest-guru/internal/config"
	"invest-guru/internal/models"
)

// separators in order of preference: paragraph, line, word
var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// Chunker splits page text into overlapping windows of at most size runes
type Chunker struct {
	size     int
	overlap  int
	strategy config.ChunkStrategy
	splitter textsplitter.RecursiveCharacter
}

type span struct {
	start, end int
}

// New validates the window parameters. It returns a *models.ConfigError unless
// 0 <= overlap < size.
func New(size, overlap int, strategy config.ChunkStrategy) (*Chunker, error) {
	if size <= 0 {
		return nil, &models.ConfigError{Field: "chunk_size", Reason: fmt.Sprintf("must be positive, got %d", size)}
	}
	if overlap < 0 || overlap >= size {
		return nil, &models.ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must satisfy 0 <= overlap < %d, got %d", size, overlap)}
	}
	if strategy == "" {
		strategy = config.StrategyRecursive
	}
	strategy, err := config.ParseChunkStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	return &Chunker{
		size:     size,
		overlap:  overlap,
		strategy: strategy,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Size returns the maximum chunk length in runes
func (c *Chunker) Size() int { return c.size }

// Overlap returns the maximum overlap between consecutive chunks
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits every page independently. Chunks never span two pages and
// carry the metadata of their page unchanged.
func (c *Chunker) Chunk(pages []models.PageRecord) ([]models.ChunkRecord, error) {
	var chunks []models.ChunkRecord
	for _, page := range pages {
		pageChunks, err := c.chunkPage(page)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s page %d: %w", page.Source, page.Page, err)
		}
		chunks = append(chunks, pageChunks...)
	}
	log.Debug().Int("pages", len(pages)).Int("chunks", len(chunks)).Str("strategy", string(c.strategy)).Msg("Split pages into chunks")
	return chunks, nil
}

func (c *Chunker) chunkPage(page models.PageRecord) ([]models.ChunkRecord, error) {
	if c.strategy == config.StrategyLangchain {
		return c.chunkLangchain(page)
	}

	runes := []rune(page.Content)
	spans := c.split(runes)
	chunks := make([]models.ChunkRecord, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, models.ChunkRecord{
			Content:  string(runes[s.start:s.end]),
			Metadata: page.PageMetadata,
			Index:    i,
			Start:    s.start,
		})
	}
	return chunks, nil
}

// split returns exact windows over r; consecutive windows never leave a gap
func (c *Chunker) split(r []rune) []span {
	n := len(r)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []span{{0, n}}
	}

	var spans []span
	start := 0
	for {
		if n-start <= c.size {
			spans = append(spans, span{start, n})
			return spans
		}
		end := c.cutPoint(r, start)
		spans = append(spans, span{start, end})
		start = c.nextStart(r, end)
	}
}

// cutPoint picks the end of the window starting at start. The end always lies
// beyond start+overlap so the following window makes progress.
func (c *Chunker) cutPoint(r []rune, start int) int {
	limit := start + c.size
	for _, sep := range separators {
		for end := limit; end > start+c.overlap && end-len(sep) >= start; end-- {
			if runesAt(r, end-len(sep), sep) {
				return end
			}
		}
	}
	return limit
}

// nextStart backs up at most overlap runes from end, preferring a word start
func (c *Chunker) nextStart(r []rune, end int) int {
	if c.overlap == 0 {
		return end
	}
	from := end - c.overlap
	for p := from; p < end; p++ {
		if p > 0 && unicode.IsSpace(r[p-1]) && !unicode.IsSpace(r[p]) {
			return p
		}
	}
	return from
}

func runesAt(r []rune, at int, sep []rune) bool {
	if at < 0 || at+len(sep) > len(r) {
		return false
	}
	for i, s := range sep {
		if r[at+i] != s {
			return false
		}
	}
	return true
}

// chunkLangchain uses the langchaingo recursive splitter, which trims the
// pieces it returns. Start is -1 when a piece cannot be located in the page.
func (c *Chunker) chunkLangchain(page models.PageRecord) ([]models.ChunkRecord, error) {
	pieces, err := c.splitter.SplitText(page.Content)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.ChunkRecord, 0, len(pieces))
	cursor := 0
	for i, piece := range pieces {
		start := -1
		if idx := strings.Index(page.Content[cursor:], piece); idx >= 0 {
			start = utf8.RuneCountInString(page.Content[:cursor+idx])
			cursor += idx
		}
		chunks = append(chunks, models.ChunkRecord{
			Content:  piece,
			Metadata: page.PageMetadata,
			Index:    i,
			Start:    start,
		})
	}
	return chunks, nil
}
