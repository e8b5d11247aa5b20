package config

import (
	"fmt"
	"strings"

	"invest-guru/internal/models"
)

// EmbeddingProvider selects where chunk embeddings are computed
type EmbeddingProvider string

const (
	EmbedOllama EmbeddingProvider = "ollama"
	EmbedOpenAI EmbeddingProvider = "openai"
	EmbedGemini EmbeddingProvider = "gemini"
)

// ChatProvider selects the chat model backend
type ChatProvider string

const (
	ChatOpenAI ChatProvider = "openai"
	ChatOllama ChatProvider = "ollama"
	ChatGemini ChatProvider = "gemini"
)

// LLMModel is a chat model identifier
type LLMModel string

const (
	ModelGPT35Turbo LLMModel = "gpt-3.5-turbo"
	ModelGPT4       LLMModel = "gpt-4"
	ModelGPT4o      LLMModel = "gpt-4o"
	ModelGPT4oMini  LLMModel = "gpt-4o-mini"
)

// openAIModels are the hosted models accepted for the openai provider
var openAIModels = []LLMModel{ModelGPT35Turbo, ModelGPT4, ModelGPT4o, ModelGPT4oMini}

// StoreBackend selects the vector store implementation
type StoreBackend string

const (
	BackendChromem  StoreBackend = "chromem"
	BackendPgvector StoreBackend = "pgvector"
)

// ChunkStrategy selects the chunking algorithm
type ChunkStrategy string

const (
	StrategyRecursive ChunkStrategy = "recursive"
	StrategyLangchain ChunkStrategy = "langchain"
)

// EmbeddingSpec is a resolved embedding provider with the settings it needs
type EmbeddingSpec struct {
	Provider EmbeddingProvider
	Model    string
	BaseURL  string
	Key      string
}

// ChatSpec is a resolved chat provider with the settings it needs
type ChatSpec struct {
	Provider    ChatProvider
	Model       LLMModel
	BaseURL     string
	Key         string
	Temperature float64
}

// Embedding resolves the embedding provider settings
func (c *Config) Embedding() (EmbeddingSpec, error) {
	spec := EmbeddingSpec{
		Provider: EmbeddingProvider(strings.ToLower(c.EmbedLLM.Provider)),
		Model:    c.EmbedLLM.Model,
		BaseURL:  c.EmbedLLM.BaseURL,
		Key:      c.EmbedLLM.Key,
	}
	switch spec.Provider {
	case EmbedOllama:
	case EmbedOpenAI, EmbedGemini:
		if spec.Key == "" {
			return spec, &models.ConfigError{Field: "embed_llm.key", Reason: fmt.Sprintf("api key required for %s embeddings", spec.Provider)}
		}
	default:
		return spec, &models.ConfigError{Field: "embed_llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.EmbedLLM.Provider)}
	}
	if spec.Model == "" {
		return spec, &models.ConfigError{Field: "embed_llm.model", Reason: "must not be empty"}
	}
	return spec, nil
}

// Chat resolves the chat provider and model
func (c *Config) Chat() (ChatSpec, error) {
	spec := ChatSpec{
		Provider:    ChatProvider(strings.ToLower(c.ChatLLM.Provider)),
		Model:       LLMModel(c.ChatLLM.Model),
		BaseURL:     c.ChatLLM.BaseURL,
		Key:         c.ChatLLM.Key,
		Temperature: c.RAG.Temperature,
	}
	switch spec.Provider {
	case ChatOpenAI:
		if !isOpenAIModel(spec.Model) {
			return spec, &models.ConfigError{Field: "chat_llm.model", Reason: fmt.Sprintf("model %q not supported", spec.Model)}
		}
		if spec.Key == "" {
			return spec, &models.ConfigError{Field: "chat_llm.key", Reason: fmt.Sprintf("api key required to use %s", spec.Model)}
		}
	case ChatGemini:
		if spec.Key == "" {
			return spec, &models.ConfigError{Field: "chat_llm.key", Reason: "api key required for gemini"}
		}
		if !strings.HasPrefix(string(spec.Model), "gemini-") {
			return spec, &models.ConfigError{Field: "chat_llm.model", Reason: fmt.Sprintf("model %q not supported", spec.Model)}
		}
	case ChatOllama:
		if spec.Model == "" {
			return spec, &models.ConfigError{Field: "chat_llm.model", Reason: "must not be empty"}
		}
	default:
		return spec, &models.ConfigError{Field: "chat_llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.ChatLLM.Provider)}
	}
	return spec, nil
}

func isOpenAIModel(m LLMModel) bool {
	for _, known := range openAIModels {
		if m == known {
			return true
		}
	}
	return false
}

// ParseBackend resolves a vector store backend name
func ParseBackend(s string) (StoreBackend, error) {
	switch b := StoreBackend(strings.ToLower(s)); b {
	case BackendChromem, BackendPgvector:
		return b, nil
	}
	return "", &models.ConfigError{Field: "vector_store.backend", Reason: fmt.Sprintf("unsupported backend %q", s)}
}

// ParseChunkStrategy resolves a chunking strategy name
func ParseChunkStrategy(s string) (ChunkStrategy, error) {
	switch st := ChunkStrategy(strings.ToLower(s)); st {
	case StrategyRecursive, StrategyLangchain:
		return st, nil
	}
	return "", &models.ConfigError{Field: "rag.chunk_strategy", Reason: fmt.Sprintf("unsupported strategy %q", s)}
}
