// Package rag ties ingestion, retrieval and answer generation together.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/document"
	"github.com/fyrsmithlabs/localrag/internal/logging"
	"github.com/fyrsmithlabs/localrag/internal/retrieval"
)

var tracer = otel.Tracer("localrag.rag")

// ErrPathNotFound is returned when an ingest path is neither a file nor a directory.
var ErrPathNotFound = errors.New("path not found")

// NoResultsAnswer is returned, without calling the model, when nothing
// relevant is indexed.
const NoResultsAnswer = "I couldn't find any relevant information in the ingested documents."

const (
	citationLimit    = 200
	contextSeparator = "\n\n---\n\n"
)

// Pipeline turns files into chunks.
type Pipeline interface {
	Supports(path string) bool
	ProcessFile(ctx context.Context, path string) ([]document.Chunk, error)
	ProcessDirectory(ctx context.Context, dir string) ([]document.Chunk, error)
}

// Engine indexes and searches chunks.
type Engine interface {
	AddDocuments(ctx context.Context, chunks []document.Chunk) (int, error)
	DeleteSource(ctx context.Context, source string) error
	Search(ctx context.Context, query string, topK int) ([]document.RetrievedChunk, error)
	Stats(ctx context.Context) (retrieval.Stats, error)
	Reset(ctx context.Context) error
}

// Generator produces an answer from a question and context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
	Model() string
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	FilesProcessed int `json:"files_processed"`
	ChunksCreated  int `json:"chunks_created"`
	ChunksStored   int `json:"chunks_stored"`
}

// Citation points at a chunk an answer was built from.
type Citation struct {
	Document       string  `json:"document"`
	Page           *int    `json:"page"`
	ChunkText      string  `json:"chunk_text"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Answer is the result of a query.
type Answer struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
	Model   string     `json:"model"`
	Mode    string     `json:"mode"`
}

// Options holds a Service's collaborators.
type Options struct {
	Pipeline Pipeline
	Engine   Engine
	LLM      Generator

	// TopK is used when a query does not ask for a positive count.
	TopK int

	// Mode is reported on every answer, "local" or "cloud".
	Mode string

	// Closers are released by Close in order.
	Closers []func() error

	Logger *zap.Logger
}

// Service runs ingest and query requests.
type Service struct {
	pipeline Pipeline
	engine   Engine
	llm      Generator
	topK     int
	mode     string
	closers  []func() error
	logger   *zap.Logger
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Pipeline == nil || opts.Engine == nil || opts.LLM == nil {
		return nil, errors.New("rag: pipeline, engine and llm are required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		pipeline: opts.Pipeline,
		engine:   opts.Engine,
		llm:      opts.LLM,
		topK:     opts.TopK,
		mode:     opts.Mode,
		closers:  opts.Closers,
		logger:   opts.Logger,
	}, nil
}

// Ingest indexes a file or every supported file under a directory.
func (s *Service) Ingest(ctx context.Context, path string) (IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Ingest")
	defer span.End()

	start := time.Now()
	result, err := s.ingest(ctx, path)
	ingestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, err
	}

	ingestsTotal.WithLabelValues("success").Inc()
	filesIngested.Add(float64(result.FilesProcessed))
	chunksIngested.Add(float64(result.ChunksStored))

	span.SetAttributes(
		attribute.Int("files_processed", result.FilesProcessed),
		attribute.Int("chunks_stored", result.ChunksStored),
	)
	span.SetStatus(codes.Ok, "success")
	logging.WithTrace(ctx, s.logger).Info("ingest complete",
		zap.String("path", path),
		zap.Int("files_processed", result.FilesProcessed),
		zap.Int("chunks_created", result.ChunksCreated),
		zap.Int("chunks_stored", result.ChunksStored),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, path string) (IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return IngestResult{}, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return IngestResult{}, fmt.Errorf("stat %s: %w", path, err)
	}

	var chunks []document.Chunk
	switch {
	case info.Mode().IsRegular():
		chunks, err = s.pipeline.ProcessFile(ctx, path)
	case info.IsDir():
		chunks, err = s.pipeline.ProcessDirectory(ctx, path)
	default:
		return IngestResult{}, fmt.Errorf("%w: %s is not a file or directory", ErrPathNotFound, path)
	}
	if err != nil {
		return IngestResult{}, err
	}

	stored, err := s.engine.AddDocuments(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	return IngestResult{
		FilesProcessed: countSources(chunks),
		ChunksCreated:  len(chunks),
		ChunksStored:   stored,
	}, nil
}

// Refresh replaces the indexed chunks of a single file with its current
// content. The file is parsed before anything is removed, so a parse failure
// leaves the previous chunks searchable.
func (s *Service) Refresh(ctx context.Context, path string) (IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Refresh")
	defer span.End()

	result, err := s.refresh(ctx, path)
	if err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, err
	}

	ingestsTotal.WithLabelValues("success").Inc()
	chunksIngested.Add(float64(result.ChunksStored))
	span.SetAttributes(attribute.Int("chunks_stored", result.ChunksStored))
	span.SetStatus(codes.Ok, "success")
	logging.WithTrace(ctx, s.logger).Info("document refreshed",
		zap.String("path", path),
		zap.Int("chunks_stored", result.ChunksStored),
	)
	return result, nil
}

func (s *Service) refresh(ctx context.Context, path string) (IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return IngestResult{}, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return IngestResult{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return IngestResult{}, fmt.Errorf("%w: %s is not a file", ErrPathNotFound, path)
	}

	chunks, err := s.pipeline.ProcessFile(ctx, path)
	if err != nil {
		return IngestResult{}, err
	}
	if err := s.engine.DeleteSource(ctx, filepath.Base(path)); err != nil {
		return IngestResult{}, err
	}
	stored, err := s.engine.AddDocuments(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	return IngestResult{
		FilesProcessed: countSources(chunks),
		ChunksCreated:  len(chunks),
		ChunksStored:   stored,
	}, nil
}

// Supports reports whether path has a supported file extension.
func (s *Service) Supports(path string) bool {
	return s.pipeline.Supports(path)
}

// countSources returns the number of distinct source names among chunks.
func countSources(chunks []document.Chunk) int {
	seen := make(map[string]struct{})
	for _, c := range chunks {
		seen[c.Source()] = struct{}{}
	}
	return len(seen)
}

// Query retrieves the topK most relevant chunks and asks the model to answer
// from them. topK <= 0 uses the configured default.
func (s *Service) Query(ctx context.Context, question string, topK int) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "Service.Query")
	defer span.End()

	if topK <= 0 {
		topK = s.topK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	start := time.Now()
	answer, outcome, err := s.query(ctx, question, topK)
	queryDuration.Observe(time.Since(start).Seconds())
	queriesTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("source_count", len(answer.Sources)))
	span.SetStatus(codes.Ok, outcome)
	return answer, nil
}

func (s *Service) query(ctx context.Context, question string, topK int) (*Answer, string, error) {
	chunks, err := s.engine.Search(ctx, question, topK)
	if err != nil {
		return nil, "error", err
	}

	if len(chunks) == 0 {
		logging.WithTrace(ctx, s.logger).Info("no relevant chunks found", zap.Int("top_k", topK))
		return &Answer{
			Answer:  NoResultsAnswer,
			Sources: []Citation{},
			Model:   s.llm.Model(),
			Mode:    s.mode,
		}, "no_results", nil
	}

	text, err := s.llm.Generate(ctx, question, BuildContext(chunks))
	if err != nil {
		return nil, "error", err
	}

	return &Answer{
		Answer:  text,
		Sources: Citations(chunks),
		Model:   s.llm.Model(),
		Mode:    s.mode,
	}, "answered", nil
}

// BuildContext renders chunks as source-labelled blocks for the prompt.
func BuildContext(chunks []document.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		source := c.Source()
		if source == "" {
			source = "unknown"
		}
		page := "N/A"
		if p, ok := c.Page(); ok {
			page = strconv.Itoa(p)
		}
		blocks[i] = fmt.Sprintf("[Source: %s, Page: %s]\n%s", source, page, c.Content)
	}
	return strings.Join(blocks, contextSeparator)
}

// Citations converts chunks to citations in rank order.
func Citations(chunks []document.RetrievedChunk) []Citation {
	out := make([]Citation, len(chunks))
	for i, c := range chunks {
		source := c.Source()
		if source == "" {
			source = "unknown"
		}
		var page *int
		if p, ok := c.Page(); ok {
			page = &p
		}
		out[i] = Citation{
			Document:       source,
			Page:           page,
			ChunkText:      truncate(c.Content, citationLimit),
			RelevanceScore: c.Score(),
		}
	}
	return out
}

// truncate cuts s to limit runes and appends "..." when it was longer.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Stats reports the indexed collection.
func (s *Service) Stats(ctx context.Context) (retrieval.Stats, error) {
	return s.engine.Stats(ctx)
}

// Reset removes every indexed chunk.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.engine.Reset(ctx); err != nil {
		return err
	}
	s.logger.Info("index reset")
	return nil
}

// Close releases the store and provider handles.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
