package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

const pdfToolName = "pdftotext"

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. A missing pdftotext binary maps to ErrPDFToolNotFound.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		if name == pdfToolName {
			return nil, ErrPDFToolNotFound
		}
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// PDFParser extracts one unit per page through pdftotext.
// Pages are separated by form feeds in pdftotext output.
type PDFParser struct {
	runner CommandRunner
}

// NewPDFParser creates a PDF parser. A nil runner uses ExecRunner.
func NewPDFParser(runner CommandRunner) *PDFParser {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDFParser{runner: runner}
}

// Parse returns a unit for every page with non-whitespace text.
// Each unit carries its 1-based page number and the document's total page count.
func (p *PDFParser) Parse(ctx context.Context, path string) ([]document.Unit, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	out, err := p.runner.Run(ctx, pdfToolName, "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", path, err)
	}

	pages := splitPages(string(out))
	units := make([]document.Unit, 0, len(pages))
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		meta := baseMetadata(path)
		meta[document.KeyFileType] = "pdf"
		meta[document.KeyPage] = i + 1
		meta[document.KeyTotalPages] = len(pages)
		units = append(units, document.Unit{Content: text, Metadata: meta})
	}
	return units, nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates
// every page, including the last, with a form feed.
func splitPages(out string) []string {
	if out == "" {
		return nil
	}
	pages := strings.Split(out, "\f")
	if pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
