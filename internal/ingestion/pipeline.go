// Package ingestion turns files and directory trees into chunks ready for indexing.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

var tracer = otel.Tracer("localrag.ingestion")

// Parser extracts units from a file and reports which extensions it handles.
type Parser interface {
	Parse(ctx context.Context, path string) ([]document.Unit, error)
	Supports(ext string) bool
}

// Splitter chunks a batch of units.
type Splitter interface {
	Split(units []document.Unit) []document.Chunk
}

// Pipeline parses then chunks documents.
type Pipeline struct {
	parser   Parser
	splitter Splitter
	logger   *zap.Logger
}

// New creates a Pipeline.
func New(parser Parser, splitter Splitter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		parser:   parser,
		splitter: splitter,
		logger:   logger,
	}
}

// Supports reports whether path has a supported extension.
func (p *Pipeline) Supports(path string) bool {
	return p.parser.Supports(filepath.Ext(path))
}

// ProcessFile parses and chunks a single file. Files with unsupported
// extensions are logged and yield no chunks.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) ([]document.Chunk, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ProcessFile")
	defer span.End()
	span.SetAttributes(attribute.String("file", filepath.Base(path)))

	if !p.Supports(path) {
		p.logger.Warn("unsupported file type, skipping",
			zap.String("path", path),
			zap.String("extension", filepath.Ext(path)),
		)
		span.SetStatus(codes.Ok, "skipped")
		return nil, nil
	}

	p.logger.Info("parsing file", zap.String("file", filepath.Base(path)))

	units, err := p.parser.Parse(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	chunks := p.splitter.Split(units)

	p.logger.Info("file chunked",
		zap.String("file", filepath.Base(path)),
		zap.Int("units", len(units)),
		zap.Int("chunks", len(chunks)),
	)

	span.SetAttributes(
		attribute.Int("unit_count", len(units)),
		attribute.Int("chunk_count", len(chunks)),
	)
	span.SetStatus(codes.Ok, "success")
	return chunks, nil
}

// ProcessDirectory processes every supported file under dir, recursively,
// in lexical path order. chunk_index is renumbered across the combined
// result so identical trees produce identical indexes.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string) ([]document.Chunk, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ProcessDirectory")
	defer span.End()

	files, err := p.collectFiles(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	p.logger.Info("found supported files",
		zap.String("dir", dir),
		zap.Int("count", len(files)),
	)

	var all []document.Chunk
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunks, err := p.ProcessFile(ctx, path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		all = append(all, chunks...)
	}

	for i := range all {
		all[i].Metadata[document.KeyChunkIndex] = i
	}

	span.SetAttributes(
		attribute.Int("file_count", len(files)),
		attribute.Int("chunk_count", len(all)),
	)
	span.SetStatus(codes.Ok, "success")
	return all, nil
}

// collectFiles walks dir and returns supported regular files sorted by path.
func (p *Pipeline) collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !p.Supports(path) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}
