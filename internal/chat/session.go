package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"invest-guru/internal/models"
)

// Asker answers a question given the previous exchanges; *rag.Chain satisfies it
type Asker interface {
	Invoke(ctx context.Context, question string, history []models.Exchange) (*models.Answer, error)
}

// Session owns the transcript of one conversation. It is not safe for
// concurrent use.
type Session struct {
	asker Asker
	turns []models.ConversationTurn
}

func NewSession(asker Asker) *Session {
	return &Session{asker: asker}
}

// Ask records the question, runs the chain with the history so far and
// records the answer. On failure the assistant turn carries an apology and
// the error is returned.
func (s *Session) Ask(ctx context.Context, question string) (models.ConversationTurn, *models.Answer, error) {
	history := s.History()
	s.turns = append(s.turns, models.ConversationTurn{Role: models.RoleUser, Content: question})

	answer, err := s.asker.Invoke(ctx, question, history)
	if err != nil {
		log.Error().Err(err).Str("question", question).Msg("Failed to answer")
		turn := models.ConversationTurn{
			Role:    models.RoleAssistant,
			Content: fmt.Sprintf(models.ErrorAnswerText, err),
			Sources: models.ErrorSourcesText,
			Failed:  true,
		}
		s.turns = append(s.turns, turn)
		return turn, nil, err
	}

	turn := models.ConversationTurn{
		Role:    models.RoleAssistant,
		Content: answer.Text,
		Sources: FormatSources(answer.UsedChunks),
	}
	s.turns = append(s.turns, turn)
	return turn, answer, nil
}

// Turns returns a copy of the transcript, oldest first
func (s *Session) Turns() []models.ConversationTurn {
	out := make([]models.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// History pairs each user turn with the assistant turn right after it
func (s *Session) History() []models.Exchange {
	var history []models.Exchange
	for i := 0; i+1 < len(s.turns); i++ {
		if s.turns[i].Role == models.RoleUser && s.turns[i+1].Role == models.RoleAssistant {
			history = append(history, models.Exchange{
				Question: s.turns[i].Content,
				Answer:   s.turns[i+1].Content,
			})
			i++
		}
	}
	return history
}

func (s *Session) Clear() {
	s.turns = nil
}

// FormatSources renders one numbered markdown line per chunk
func FormatSources(chunks []models.ScoredChunk) string {
	if len(chunks) == 0 {
		return models.NoSourcesText
	}
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = fmt.Sprintf("%d. **%s** (Pág. %d, %s)", i+1, c.Source(), c.Page(), c.Module())
	}
	return strings.Join(lines, "\n")
}
