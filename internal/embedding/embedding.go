package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"invest-guru/internal/config"
)

// NewEmbedder builds the embedder for a resolved provider. The caller owns
// the returned closer, which is nil for providers without resources to release.
func NewEmbedder(ctx context.Context, spec config.EmbeddingSpec) (embeddings.Embedder, func() error, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        string(spec.Provider),
		"base_url":        spec.BaseURL,
		"embedding_model": spec.Model,
	}).Msg("Creating embedder")

	switch spec.Provider {
	case config.EmbedOllama:
		e, err := NewOllamaEmbedder(spec.BaseURL, spec.Model)
		return e, nil, err
	case config.EmbedOpenAI:
		e, err := NewOpenAIEmbedder(spec.Key, spec.BaseURL, spec.Model)
		return e, nil, err
	case config.EmbedGemini:
		e, err := NewGeminiEmbedder(ctx, spec.Key, spec.Model)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported embedding provider %q", spec.Provider)
}

// NewOpenAIEmbedder creates an embedder backed by an OpenAI compatible API
func NewOpenAIEmbedder(key, baseURL, embeddingModel string) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(key, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(baseURL, model string) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
