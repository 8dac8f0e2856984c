package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/chunker"
	"github.com/fyrsmithlabs/localrag/internal/config"
	"github.com/fyrsmithlabs/localrag/internal/embeddings"
	"github.com/fyrsmithlabs/localrag/internal/ingestion"
	"github.com/fyrsmithlabs/localrag/internal/llm"
	"github.com/fyrsmithlabs/localrag/internal/parser"
	"github.com/fyrsmithlabs/localrag/internal/retrieval"
	"github.com/fyrsmithlabs/localrag/internal/vectorstore"
)

// NewFromConfig builds a Service and all of its collaborators from cfg.
// The caller owns the Service and must Close it.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	pipeline := ingestion.New(parser.New(), splitter, logger.Named("ingestion"))

	embedBaseURL := cfg.OllamaBaseURL
	if cfg.EffectiveEmbeddingProvider() == embeddings.ProviderOpenAI {
		embedBaseURL = cfg.OpenAIBaseURL
	}
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:          cfg.EffectiveEmbeddingProvider(),
		Model:             cfg.EffectiveEmbedModel(),
		BaseURL:           embedBaseURL,
		APIKey:            cfg.OpenAIAPIKey.Value(),
		CacheDir:          cfg.EmbeddingCacheDir,
		BatchSize:         cfg.EmbeddingBatchSize,
		RequestsPerSecond: cfg.EmbeddingRPS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	dimension := provider.Dimension()
	if cfg.VectorStore == config.StoreQdrant && dimension == 0 {
		if dimension, err = embeddings.DetectDimension(ctx, provider); err != nil {
			_ = provider.Close()
			return nil, err
		}
	}

	store, err := vectorstore.NewStore(cfg, dimension, logger.Named("vectorstore"))
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	engine, err := retrieval.NewEngine(ctx, store, provider, retrieval.Config{
		CollectionName: cfg.CollectionName,
		ScoreThreshold: cfg.ScoreThreshold,
	}, logger.Named("retrieval"))
	if err != nil {
		_ = store.Close()
		_ = provider.Close()
		return nil, err
	}

	llmBaseURL := cfg.OllamaBaseURL
	if cfg.Mode == config.ModeCloud {
		llmBaseURL = cfg.OpenAIBaseURL
	}
	client, err := llm.New(llm.Config{
		Mode:        cfg.Mode,
		Model:       cfg.EffectiveLLMModel(),
		BaseURL:     llmBaseURL,
		APIKey:      cfg.OpenAIAPIKey.Value(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger.Named("llm"))
	if err != nil {
		_ = engine.Close()
		_ = provider.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	logger.Info("rag service ready",
		zap.String("mode", cfg.Mode),
		zap.String("llm_model", client.Model()),
		zap.String("embed_model", cfg.EffectiveEmbedModel()),
		zap.String("vector_store", cfg.VectorStore),
		zap.String("collection", cfg.CollectionName),
	)

	return New(Options{
		Pipeline: pipeline,
		Engine:   engine,
		LLM:      client,
		TopK:     cfg.TopK,
		Mode:     cfg.Mode,
		Closers:  []func() error{engine.Close, provider.Close},
		Logger:   logger.Named("rag"),
	})
}
