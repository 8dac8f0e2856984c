package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("localrag.vectorstore.chromem")

// collectionNamePattern: lowercase letters, digits, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName rejects names that could escape the storage
// directory or that a backend would refuse.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. "~" is expanded.
	// Default: "./data/chroma"
	Path string

	// Compress enables gzip compression of stored records.
	Compress bool

	// Concurrency is the number of goroutines used when adding documents.
	// Default: 4
	Concurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./data/chroma"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// ChromemStore implements Store on chromem-go, an embedded vector database
// that keeps collections in memory and mirrors every write to disk.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	path   string
	logger *zap.Logger
}

// NewChromemStore opens (or creates) the database at config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB at %s: %w", path, err)
	}

	logger.Info("chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)

	return &ChromemStore{
		db:     db,
		config: config,
		path:   path,
		logger: logger,
	}, nil
}

// Path returns the resolved storage directory.
func (s *ChromemStore) Path() string {
	return s.path
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc is only invoked by chromem for documents without a
// vector, which AddDocuments rejects up front. Passing nil would make
// chromem fall back to OpenAI.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(context.Context, string) ([]float32, error) {
		return nil, ErrMissingEmbedding
	}
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c := s.db.GetCollection(name, s.embeddingFunc())
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid collection name")
		return err
	}

	if _, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	return s.db.GetCollection(name, s.embeddingFunc()) != nil, nil
}

// DeleteCollection removes the collection and its files.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	CollectionDocuments.DeleteLabelValues(ProviderChromem, name)
	s.logger.Debug("collection deleted", zap.String("collection", name))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteBySource removes the documents stored for source.
func (s *ChromemStore) DeleteBySource(ctx context.Context, name, source string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteBySource")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.String("source", source),
	)

	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidConfig)
	}
	col, err := s.collection(name)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		span.RecordError(err)
		return err
	}

	before := col.Count()
	if err := col.Delete(ctx, map[string]string{MetadataSource: source}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %s from %s: %w", source, name, err)
	}

	remaining := col.Count()
	CollectionDocuments.WithLabelValues(ProviderChromem, name).Set(float64(remaining))
	s.logger.Debug("documents deleted",
		zap.String("collection", name),
		zap.String("source", source),
		zap.Int("count", before-remaining),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// AddDocuments writes docs to the collection, creating it if needed.
func (s *ChromemStore) AddDocuments(ctx context.Context, name string, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}
	if err := ValidateCollectionName(name); err != nil {
		span.RecordError(err)
		return err
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("getting collection %s: %w", name, err)
	}

	records := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			err := fmt.Errorf("%w: %s", ErrMissingEmbedding, doc.ID)
			span.RecordError(err)
			return err
		}
		records[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  stringifyMetadata(doc.Metadata),
			Embedding: doc.Embedding,
		}
	}

	if err := col.AddDocuments(ctx, records, s.config.Concurrency); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", name, err)
	}

	DocumentsAdded.WithLabelValues(ProviderChromem).Add(float64(len(docs)))
	CollectionDocuments.WithLabelValues(ProviderChromem, name).Set(float64(col.Count()))

	s.logger.Debug("documents added",
		zap.String("collection", name),
		zap.Int("count", len(docs)),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns the k nearest documents by cosine similarity.
// An empty collection yields no results.
func (s *ChromemStore) Query(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("k", k),
	)

	start := time.Now()
	results, err := s.query(ctx, name, vector, k)
	observeQuery(ProviderChromem, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (s *ChromemStore) query(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}

	// chromem rejects k above the collection size
	n := col.Count()
	if n == 0 {
		return []SearchResult{}, nil
	}
	if k > n {
		k = n
	}

	found, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}

	results := make([]SearchResult, len(found))
	for i, r := range found {
		results[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: typeMetadata(r.Metadata),
			Score:    r.Similarity,
		}
	}
	return results, nil
}

// Count returns the number of documents in the collection.
func (s *ChromemStore) Count(_ context.Context, name string) (int, error) {
	col, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close is a no-op; chromem persists every write immediately.
func (s *ChromemStore) Close() error {
	return nil
}

// IsNotFound reports whether err means the collection is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

var _ Store = (*ChromemStore)(nil)
