// Package embeddings provides text embedding via local or hosted models.
//
// Local mode talks to an Ollama server (or runs an ONNX model in-process
// through FastEmbed); cloud mode calls the OpenAI embeddings API. All
// providers satisfy the same Provider contract and are selected by
// NewProvider from configuration.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider could not produce embeddings.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderFastEmbed = "fastembed"
)

// Provider turns text into fixed-length vectors.
type Provider interface {
	// EmbedDocuments embeds a batch of passages in one call.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length, or 0 if not yet known.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of "ollama", "openai" or "fastembed".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the Ollama server URL, or an OpenAI-compatible endpoint.
	BaseURL string
	// APIKey authenticates against OpenAI.
	APIKey string
	// CacheDir is the model cache directory (FastEmbed only).
	CacheDir string
	// BatchSize caps texts per request. 0 uses the library default.
	BatchSize int
	// RequestsPerSecond throttles calls when positive.
	RequestsPerSecond float64
}

// knownDimensions maps common hosted and Ollama models to their vector length.
var knownDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// dimensionForModel returns the known dimension for model, ignoring an
// Ollama ":tag" suffix. Unknown models return 0.
func dimensionForModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	for i := len(model) - 1; i >= 0; i-- {
		if model[i] == ':' {
			return knownDimensions[model[:i]]
		}
	}
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	return 0
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderOllama, "":
		p, err = NewOllamaProvider(cfg)
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(cfg)
	case ProviderFastEmbed:
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimited(p, cfg.RequestsPerSecond, 1)
	}
	return p, nil
}

// DetectDimension returns p's dimension, embedding a probe text when the
// model is not in the known table.
func DetectDimension(ctx context.Context, p Provider) (int, error) {
	if dim := p.Dimension(); dim > 0 {
		return dim, nil
	}
	vec, err := p.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("detecting embedding dimension: %w", err)
	}
	return len(vec), nil
}
