package embeddings

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	// DefaultOllamaURL is the default local Ollama server.
	DefaultOllamaURL = "http://localhost:11434"
	// DefaultOllamaModel is the default local embedding model.
	DefaultOllamaModel = "nomic-embed-text"
	// DefaultOpenAIModel is the hosted embedding model used in cloud mode.
	DefaultOpenAIModel = "text-embedding-3-small"
)

// LangChainProvider embeds through a langchaingo embedder backed by
// Ollama or OpenAI.
type LangChainProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension atomic.Int64
	metrics   *Metrics
}

// NewOllamaProvider creates a provider that calls a local Ollama server.
func NewOllamaProvider(cfg ProviderConfig) (*LangChainProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Ollama client: %w", err)
	}
	return newLangChainProvider(llm, cfg)
}

// NewOpenAIProvider creates a provider that calls the OpenAI embeddings API.
func NewOpenAIProvider(cfg ProviderConfig) (*LangChainProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return newLangChainProvider(llm, cfg)
}

func newLangChainProvider(client embeddings.EmbedderClient, cfg ProviderConfig) (*LangChainProvider, error) {
	var opts []embeddings.Option
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}

	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	p := &LangChainProvider{
		embedder: embedder,
		model:    cfg.Model,
		metrics:  NewMetrics(zap.NewNop()),
	}
	p.dimension.Store(int64(dimensionForModel(cfg.Model)))
	return p, nil
}

// EmbedDocuments embeds texts in as few requests as the batch size allows.
func (p *LangChainProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}

	p.observe(vectors[0])
	return vectors, nil
}

// EmbedQuery embeds a single query.
func (p *LangChainProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := p.embedder.EmbedQuery(ctx, text)
	p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	p.observe(vector)
	return vector, nil
}

// observe records the dimension from the first vector seen.
func (p *LangChainProvider) observe(vec []float32) {
	if len(vec) > 0 {
		p.dimension.CompareAndSwap(0, int64(len(vec)))
	}
}

// Model returns the embedding model name.
func (p *LangChainProvider) Model() string {
	return p.model
}

// Dimension returns the vector length, or 0 before the first call for unknown models.
func (p *LangChainProvider) Dimension() int {
	return int(p.dimension.Load())
}

// Close is a no-op; the underlying clients use plain HTTP.
func (p *LangChainProvider) Close() error {
	return nil
}

var _ Provider = (*LangChainProvider)(nil)
