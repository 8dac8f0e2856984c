package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVParser emits one unit per data row. The first record is the header.
type CSVParser struct{}

// Parse renders each row as "key: value" pairs joined by " | ", skipping
// empty values. Rows are numbered from 1, excluding the header.
func (p *CSVParser) Parse(ctx context.Context, path string) ([]document.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}

	var units []document.Unit
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
		}

		meta := baseMetadata(path)
		meta[document.KeyFileType] = "csv"
		meta[document.KeyRow] = row
		units = append(units, document.Unit{
			Content:  formatRow(header, record),
			Metadata: meta,
		})
	}
	return units, nil
}

// formatRow pairs header names with values. Missing trailing values are
// treated as empty and extra values without a header are dropped.
func formatRow(header, record []string) string {
	parts := make([]string, 0, len(header))
	for i, key := range header {
		if i >= len(record) || record[i] == "" {
			continue
		}
		parts = append(parts, key+": "+record[i])
	}
	return strings.Join(parts, " | ")
}
