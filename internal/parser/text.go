package parser

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

// TextParser reads plain text and markdown files verbatim.
type TextParser struct{}

// Parse returns the whole file as one unit. file_type is the extension
// without its dot.
func (p *TextParser) Parse(_ context.Context, path string) ([]document.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformedDocument, path)
	}

	return []document.Unit{{
		Content:  string(data),
		Metadata: baseMetadata(path),
	}}, nil
}
