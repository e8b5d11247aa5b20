package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"invest-guru/internal/models"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Paths       PathsConfig       `yaml:"paths"`
	RAG         RAGConfig         `yaml:"rag"`
	Ingest      IngestConfig      `yaml:"ingest"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	ChatLLM     LLMConfig         `yaml:"chat_llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Database    DatabaseConfig    `yaml:"database"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// PathsConfig holds the two pieces of durable state
type PathsConfig struct {
	PDFDir   string `yaml:"pdf_dir"`
	IndexDir string `yaml:"index_dir"`
}

type RAGConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`
	ChunkOverlap  int     `yaml:"chunk_overlap"`
	ChunkStrategy string  `yaml:"chunk_strategy"`
	TopK          int     `yaml:"top_k"`
	Temperature   float64 `yaml:"temperature"`
	EncryptionKey string  `yaml:"encryption_key"`
}

type IngestConfig struct {
	Extensions      []string `yaml:"extensions"`
	ReplaceExisting *bool    `yaml:"replace_existing"`
}

// LLMConfig configures either the embedding or the chat model
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type VectorStoreConfig struct {
	Backend    string `yaml:"backend"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	Driver    string `yaml:"driver"`
	Dimension int    `yaml:"dimension"` // 0 accepts any embedding length
	Debug     bool   `yaml:"debug"`
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultTopK         = 4
	defaultTemperature  = 0.2
	defaultPDFDir       = "data/pdfs"
	defaultIndexDir     = "data/index"
	defaultCollection   = "invest_guru"
)

// LoadConfig reads the yaml file at path, overlays secrets from envFile and the
// process environment, then applies defaults. A missing config file is not an error.
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.ChatLLM.Key == "" && providerOr(cfg.ChatLLM.Provider, "openai") == "openai" {
			cfg.ChatLLM.Key = v
		}
		if cfg.EmbedLLM.Key == "" && cfg.EmbedLLM.Provider == "openai" {
			cfg.EmbedLLM.Key = v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if cfg.ChatLLM.Key == "" && cfg.ChatLLM.Provider == "gemini" {
			cfg.ChatLLM.Key = v
		}
		if cfg.EmbedLLM.Key == "" && cfg.EmbedLLM.Provider == "gemini" {
			cfg.EmbedLLM.Key = v
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CHROMEM_ENCRYPTION_KEY"); v != "" {
		cfg.RAG.EncryptionKey = v
	}
	if v := os.Getenv("RAG_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.RAG.TopK = k
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Paths.PDFDir == "" {
		cfg.Paths.PDFDir = defaultPDFDir
	}
	if cfg.Paths.IndexDir == "" {
		cfg.Paths.IndexDir = defaultIndexDir
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
		if cfg.RAG.ChunkOverlap == 0 {
			cfg.RAG.ChunkOverlap = defaultChunkOverlap
		}
	}
	if cfg.RAG.ChunkStrategy == "" {
		cfg.RAG.ChunkStrategy = string(StrategyRecursive)
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.Temperature == 0 {
		cfg.RAG.Temperature = defaultTemperature
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".pdf"}
	}
	if cfg.Ingest.ReplaceExisting == nil {
		replace := true
		cfg.Ingest.ReplaceExisting = &replace
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = string(EmbedOllama)
	}
	if cfg.EmbedLLM.Model == "" {
		switch cfg.EmbedLLM.Provider {
		case string(EmbedOpenAI):
			cfg.EmbedLLM.Model = "text-embedding-3-small"
		case string(EmbedGemini):
			cfg.EmbedLLM.Model = "text-embedding-004"
		default:
			cfg.EmbedLLM.Model = "nomic-embed-text"
		}
	}
	if cfg.EmbedLLM.Provider == string(EmbedOllama) && cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = string(ChatOpenAI)
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = string(ModelGPT35Turbo)
	}
	if cfg.ChatLLM.Provider == string(ChatOllama) && cfg.ChatLLM.BaseURL == "" {
		cfg.ChatLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = string(BackendChromem)
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = defaultCollection
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pg"
	}
}

func providerOr(p, fallback string) string {
	if p == "" {
		return fallback
	}
	return p
}

// ReplaceOnIngest reports whether re-ingesting a source deletes its previous chunks first
func (c *Config) ReplaceOnIngest() bool {
	return c.Ingest.ReplaceExisting == nil || *c.Ingest.ReplaceExisting
}

// Validate checks everything ingestion needs and returns a *models.ConfigError
// for the first invalid setting. The chat model is resolved separately by Chat,
// so indexing works without chat credentials.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return &models.ConfigError{Field: "rag.chunk_size", Reason: "must be positive"}
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return &models.ConfigError{Field: "rag.chunk_overlap", Reason: "must satisfy 0 <= overlap < chunk_size"}
	}
	if _, err := ParseChunkStrategy(c.RAG.ChunkStrategy); err != nil {
		return err
	}
	if c.RAG.TopK <= 0 {
		return &models.ConfigError{Field: "rag.top_k", Reason: "must be positive"}
	}
	if _, err := c.Embedding(); err != nil {
		return err
	}
	backend, err := ParseBackend(c.VectorStore.Backend)
	if err != nil {
		return err
	}
	if backend == BackendPgvector {
		if c.Database.URL == "" {
			return &models.ConfigError{Field: "database.url", Reason: "required for the pgvector backend"}
		}
		if c.Database.Driver != "pg" && c.Database.Driver != "postgres" {
			return &models.ConfigError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
		}
	}
	return nil
}
