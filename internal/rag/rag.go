package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"

	"invest-guru/internal/llmservice"
	"invest-guru/internal/models"
)

const defaultK = 4

// Retriever returns the k chunks closest to a query
type Retriever interface {
	Search(ctx context.Context, query string, k int, where map[string]string) ([]models.ScoredChunk, error)
}

// Chain is the history-aware retrieval chain: rewrite the question into a
// standalone query, retrieve, then answer from the retrieved context only
type Chain struct {
	generator llmservice.Generator
	retriever Retriever
	k         int
	filter    map[string]string
	rewrite   prompts.PromptTemplate
	answer    prompts.PromptTemplate
}

type Option func(*Chain)

func WithK(k int) Option {
	return func(c *Chain) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithFilter restricts retrieval to chunks whose metadata matches every pair
func WithFilter(where map[string]string) Option {
	return func(c *Chain) { c.filter = where }
}

// WithRewriteTemplate overrides the question rewriting prompt; it receives
// chat_history and input
func WithRewriteTemplate(tmpl string) Option {
	return func(c *Chain) {
		c.rewrite = prompts.NewPromptTemplate(tmpl, []string{"chat_history", "input"})
	}
}

// WithAnswerTemplate overrides the grounding prompt; it receives context and input
func WithAnswerTemplate(tmpl string) Option {
	return func(c *Chain) {
		c.answer = prompts.NewPromptTemplate(tmpl, []string{"context", "input"})
	}
}

func NewChain(generator llmservice.Generator, retriever Retriever, opts ...Option) *Chain {
	c := &Chain{
		generator: generator,
		retriever: retriever,
		k:         defaultK,
		rewrite:   prompts.NewPromptTemplate(models.RewritePromptTemplate, []string{"chat_history", "input"}),
		answer:    prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "input"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke answers question given the prior exchanges of the conversation.
// Failures come back as *models.GenerationError naming the stage.
func (c *Chain) Invoke(ctx context.Context, question string, history []models.Exchange) (*models.Answer, error) {
	started := time.Now()

	query, err := c.standaloneQuery(ctx, question, history)
	if err != nil {
		return nil, &models.GenerationError{Stage: models.StageRewrite, Err: err}
	}

	chunks, err := c.retriever.Search(ctx, query, c.k, c.filter)
	if err != nil {
		return nil, &models.GenerationError{Stage: models.StageRetrieve, Err: err}
	}
	log.Debug().Str("query", query).Int("chunks", len(chunks)).Msg("Retrieved context")

	prompt, err := c.answer.Format(map[string]any{
		"context": BuildContext(chunks),
		"input":   question,
	})
	if err != nil {
		return nil, &models.GenerationError{Stage: models.StageSynthesize, Err: err}
	}
	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, &models.GenerationError{Stage: models.StageSynthesize, Err: err}
	}

	return &models.Answer{
		Question:        question,
		StandaloneQuery: query,
		Text:            text,
		UsedChunks:      chunks,
		Elapsed:         time.Since(started),
	}, nil
}

// standaloneQuery skips the LLM when there is no history to resolve
func (c *Chain) standaloneQuery(ctx context.Context, question string, history []models.Exchange) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	prompt, err := c.rewrite.Format(map[string]any{
		"chat_history": FormatHistory(history),
		"input":        question,
	})
	if err != nil {
		return "", err
	}
	rewritten, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

// BuildContext joins the chunk contents in retrieval order
func BuildContext(chunks []models.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}

func FormatHistory(history []models.Exchange) string {
	var sb strings.Builder
	for i, ex := range history {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Usuário: %s\nAssistente: %s", ex.Question, ex.Answer)
	}
	return sb.String()
}
