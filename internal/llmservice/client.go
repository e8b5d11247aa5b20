package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"invest-guru/internal/config"
	"invest-guru/internal/models"
)

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var thinkRe = regexp.MustCompile(models.ThinkTag)

// LangchainGenerator calls a langchaingo model with a single human message
type LangchainGenerator struct {
	llm         llms.Model
	temperature float64
}

func NewLangchainGenerator(llm llms.Model, temperature float64) *LangchainGenerator {
	return &LangchainGenerator{llm: llm, temperature: temperature}
}

func (g *LangchainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	res, err := g.llm.GenerateContent(ctx, msgContent, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return CleanOutput(res.Choices[0].Content), nil
}

// CleanOutput drops <think> blocks emitted by reasoning models
func CleanOutput(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// NewGenerator builds the chat model for a resolved provider. Unsupported
// models were already rejected by config.Chat, so construction errors here are
// client setup failures.
func NewGenerator(ctx context.Context, spec config.ChatSpec) (Generator, func() error, error) {
	log.Debug().Str("provider", string(spec.Provider)).Str("model", string(spec.Model)).Msg("Creating chat model")

	switch spec.Provider {
	case config.ChatOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(spec.Key, "Bearer ")),
			openai.WithModel(string(spec.Model)),
		}
		if spec.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(spec.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		return NewLangchainGenerator(llm, spec.Temperature), nil, nil
	case config.ChatOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(spec.BaseURL),
			ollama.WithModel(string(spec.Model)),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		return NewLangchainGenerator(llm, spec.Temperature), nil, nil
	case config.ChatGemini:
		g, err := NewGeminiGenerator(ctx, spec.Key, string(spec.Model), spec.Temperature)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported chat provider %q", spec.Provider)
}
