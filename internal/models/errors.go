package models

import "fmt"

// ExtractionError reports a document that could not be read
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ConfigError reports an invalid setting detected at construction time
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// IndexNotFoundError is returned when a query runs before anything was ingested
type IndexNotFoundError struct {
	Path string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found at %s: ingest documents first", e.Path)
}

// Stage names a step of the retrieval chain
type Stage string

const (
	StageRewrite    Stage = "rewrite"
	StageRetrieve   Stage = "retrieve"
	StageSynthesize Stage = "synthesize"
)

// GenerationError wraps an embedding or LLM failure together with the failing stage
type GenerationError struct {
	Stage Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
