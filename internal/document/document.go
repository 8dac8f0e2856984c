// Package document defines the text units that flow through ingestion and retrieval.
package document

import "strconv"

// Well-known metadata keys.
const (
	KeySource     = "source"
	KeyFileType   = "file_type"
	KeyPage       = "page"
	KeyTotalPages = "total_pages"
	KeyRow        = "row"
	KeyChunkIndex = "chunk_index"
	KeyScore      = "score"
)

// IntKeys lists the metadata keys whose values are integers.
var IntKeys = []string{KeyPage, KeyTotalPages, KeyRow, KeyChunkIndex}

// Metadata is a flat string-keyed property bag attached to units and chunks.
// Values are strings, ints or float64.
type Metadata map[string]any

// Clone returns a shallow copy of m. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value for key as a string, or "" when absent.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the value for key as an int and whether it was present.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Float returns the value for key as a float64 and whether it was present.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Unit is the text extracted from one logical section of a source file:
// a PDF page, a CSV row, or a whole document.
type Unit struct {
	Content  string
	Metadata Metadata
}

// Source returns the base file name the unit came from.
func (u Unit) Source() string { return u.Metadata.String(KeySource) }

// Chunk is a bounded-length slice of a Unit's text with the unit's metadata
// plus a chunk_index.
type Chunk struct {
	Content  string
	Metadata Metadata
}

// Source returns the base file name the chunk came from.
func (c Chunk) Source() string { return c.Metadata.String(KeySource) }

// Index returns the chunk_index, or -1 when unset.
func (c Chunk) Index() int {
	if i, ok := c.Metadata.Int(KeyChunkIndex); ok {
		return i
	}
	return -1
}

// RetrievedChunk is a chunk returned by similarity search. Its metadata
// carries the relevance score under KeyScore.
type RetrievedChunk struct {
	Chunk
}

// Score returns the relevance score, or 0 when absent.
func (r RetrievedChunk) Score() float64 {
	s, _ := r.Metadata.Float(KeyScore)
	return s
}

// Page returns the 1-based page and whether one is recorded.
func (r RetrievedChunk) Page() (int, bool) {
	return r.Metadata.Int(KeyPage)
}
