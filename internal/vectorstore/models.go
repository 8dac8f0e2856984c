package vectorstore

import (
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

// Document is a record to store.
type Document struct {
	// ID uniquely identifies the record within its collection.
	ID string

	// Content is the chunk text.
	Content string

	// Metadata holds string, int, float64 or bool values.
	Metadata map[string]any

	// Embedding is the precomputed vector for Content.
	Embedding []float32
}

// SearchResult is a record returned by Query.
type SearchResult struct {
	ID       string
	Content  string
	Metadata map[string]any

	// Score is cosine similarity; higher is more similar.
	Score float32
}

// intKeys are metadata keys decoded back to int when a backend stores
// metadata as strings.
var intKeys = func() map[string]bool {
	m := make(map[string]bool, len(document.IntKeys))
	for _, k := range document.IntKeys {
		m[k] = true
	}
	return m
}()

// stringifyMetadata flattens metadata for backends with string-only values.
func stringifyMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case float32:
			out[k] = strconv.FormatFloat(float64(val), 'f', -1, 32)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// typeMetadata reverses stringifyMetadata for the known integer keys.
// Everything else stays a string.
func typeMetadata(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if intKeys[k] {
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}
