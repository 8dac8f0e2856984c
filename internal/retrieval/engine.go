// Package retrieval indexes chunks as embeddings and answers similarity
// searches over one named collection.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/document"
	"github.com/fyrsmithlabs/localrag/internal/vectorstore"
)

var tracer = otel.Tracer("localrag.retrieval")

var (
	// ErrInvalidTopK is returned when a search asks for fewer than one result.
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrEmptyQuery is returned when a search query is blank.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config configures an Engine.
type Config struct {
	// CollectionName is the collection all chunks go to.
	CollectionName string

	// ScoreThreshold drops search results scoring below it. 0 disables.
	ScoreThreshold float64

	// Location overrides the storage location reported by Stats.
	Location string
}

// Stats summarizes the indexed collection.
type Stats struct {
	CollectionName  string `json:"collection_name"`
	TotalChunkCount int    `json:"total_chunk_count"`
	StorageLocation string `json:"storage_location"`
}

// Engine owns one collection in a vector store. Reset is exclusive with
// every other operation; adds and searches may run concurrently.
type Engine struct {
	store    vectorstore.Store
	embedder Embedder
	config   Config
	location string
	logger   *zap.Logger

	mu sync.RWMutex
}

// NewEngine creates an Engine and makes sure its collection exists.
func NewEngine(ctx context.Context, store vectorstore.Store, embedder Embedder, cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil || embedder == nil {
		return nil, errors.New("retrieval: store and embedder are required")
	}
	if err := vectorstore.ValidateCollectionName(cfg.CollectionName); err != nil {
		return nil, err
	}

	if err := store.EnsureCollection(ctx, cfg.CollectionName); err != nil {
		return nil, fmt.Errorf("ensuring collection %s: %w", cfg.CollectionName, err)
	}

	location := cfg.Location
	if location == "" {
		location = vectorstore.Location(store)
	}

	return &Engine{
		store:    store,
		embedder: embedder,
		config:   cfg,
		location: location,
		logger:   logger.With(zap.String("collection", cfg.CollectionName)),
	}, nil
}

// AddDocuments embeds chunks in one batch and stores them under fresh IDs.
// It returns the number stored; an empty batch stores nothing.
func (e *Engine) AddDocuments(ctx context.Context, chunks []document.Chunk) (int, error) {
	ctx, span := tracer.Start(ctx, "Engine.AddDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return 0, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		span.RecordError(err)
		return 0, err
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:        uuid.NewString(),
			Content:   c.Content,
			Metadata:  map[string]any(c.Metadata.Clone()),
			Embedding: vectors[i],
		}
	}

	if err := e.store.AddDocuments(ctx, e.config.CollectionName, docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("storing chunks: %w", err)
	}

	e.logger.Info("chunks indexed", zap.Int("count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return len(docs), nil
}

// Search returns up to topK chunks most similar to query, best first.
// Each result carries its score, rounded to four decimals, under the
// "score" metadata key.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]document.RetrievedChunk, error) {
	ctx, span := tracer.Start(ctx, "Engine.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	found, err := e.store.Query(ctx, e.config.CollectionName, vector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching: %w", err)
	}

	results := make([]document.RetrievedChunk, 0, len(found))
	for _, r := range found {
		score := roundScore(r.Score)
		if e.config.ScoreThreshold > 0 && score < e.config.ScoreThreshold {
			continue
		}
		meta := document.Metadata(r.Metadata).Clone()
		meta[document.KeyScore] = score
		results = append(results, document.RetrievedChunk{
			Chunk: document.Chunk{Content: r.Content, Metadata: meta},
		})
	}

	e.logger.Debug("search complete",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)
	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteSource removes every chunk whose source is source.
func (e *Engine) DeleteSource(ctx context.Context, source string) error {
	ctx, span := tracer.Start(ctx, "Engine.DeleteSource")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.store.DeleteBySource(ctx, e.config.CollectionName, source); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting chunks of %s: %w", source, err)
	}

	e.logger.Debug("source removed", zap.String("source", source))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Stats reports the collection name, chunk count and storage location.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n, err := e.store.Count(ctx, e.config.CollectionName)
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	return Stats{
		CollectionName:  e.config.CollectionName,
		TotalChunkCount: n,
		StorageLocation: e.location,
	}, nil
}

// Reset deletes every chunk by dropping and recreating the collection.
func (e *Engine) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Engine.Reset")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.DeleteCollection(ctx, e.config.CollectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection: %w", err)
	}
	if err := e.store.EnsureCollection(ctx, e.config.CollectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recreating collection: %w", err)
	}

	e.logger.Info("collection reset")
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionName returns the engine's collection.
func (e *Engine) CollectionName() string {
	return e.config.CollectionName
}

// Close closes the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func roundScore(s float32) float64 {
	return math.Round(float64(s)*1e4) / 1e4
}
