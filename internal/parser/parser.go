// Package parser extracts text units from supported document formats.
//
// Each format is handled by a FormatParser selected purely by the
// lower-cased file extension. PDF files yield one unit per non-blank page,
// CSV files one unit per data row, and every other format a single unit.
package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

var (
	// ErrUnsupportedFormat indicates the file extension has no registered parser.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMalformedDocument indicates the file could not be decoded in its declared format.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrPDFToolNotFound indicates pdftotext is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")
)

// FormatParser converts one file into raw text units.
type FormatParser interface {
	Parse(ctx context.Context, path string) ([]document.Unit, error)
}

// Option configures a Parser.
type Option func(*Parser)

// WithCommandRunner overrides the runner used to invoke pdftotext.
func WithCommandRunner(r CommandRunner) Option {
	return func(p *Parser) {
		p.runner = r
	}
}

// Parser dispatches files to the FormatParser registered for their extension.
type Parser struct {
	runner  CommandRunner
	formats map[string]FormatParser
}

// New creates a Parser with every supported format registered.
func New(opts ...Option) *Parser {
	p := &Parser{runner: ExecRunner{}}
	for _, opt := range opts {
		opt(p)
	}

	text := &TextParser{}
	p.formats = map[string]FormatParser{
		".pdf":  NewPDFParser(p.runner),
		".docx": &DOCXParser{},
		".txt":  text,
		".md":   text,
		".csv":  &CSVParser{},
	}
	return p
}

// Parse extracts units from the file at path.
// Returns ErrUnsupportedFormat if the extension has no parser.
func (p *Parser) Parse(ctx context.Context, path string) ([]document.Unit, error) {
	fp, err := p.ParserFor(filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return fp.Parse(ctx, path)
}

// ParserFor returns the parser for ext. The leading dot is optional and
// matching is case-insensitive.
func (p *Parser) ParserFor(ext string) (FormatParser, error) {
	key := normalizeExt(ext)
	fp, ok := p.formats[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, key)
	}
	return fp, nil
}

// Supports reports whether files with the given extension can be parsed.
func (p *Parser) Supports(ext string) bool {
	_, ok := p.formats[normalizeExt(ext)]
	return ok
}

// SupportedExtensions returns the registered extensions in sorted order.
func (p *Parser) SupportedExtensions() []string {
	exts := make([]string, 0, len(p.formats))
	for ext := range p.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// fileType is the extension without its dot, used as the file_type metadata value.
func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func baseMetadata(path string) document.Metadata {
	return document.Metadata{
		document.KeySource:   filepath.Base(path),
		document.KeyFileType: fileType(path),
	}
}
