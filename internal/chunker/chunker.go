// Package chunker splits text units into bounded, overlapping chunks.
//
// Text is cut at the coarsest boundary that occurs in it (paragraph, line,
// sentence, clause, word) and pieces that are still too long are cut again
// with the next finer boundary, down to single characters. Adjacent pieces
// are then merged greedily up to the chunk size, carrying a tail of up to
// the overlap size into the following chunk. All lengths are in runes.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

const (
	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the default overlap between adjacent chunks.
	DefaultChunkOverlap = 50
)

// ErrInvalidConfig indicates an unusable size/overlap combination.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// DefaultSeparators is the boundary cascade from coarsest to finest.
// The trailing empty separator cuts between characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators replaces the separator cascade.
func WithSeparators(seps []string) Option {
	return func(s *Splitter) {
		if len(seps) > 0 {
			s.separators = append([]string(nil), seps...)
		}
	}
}

// Splitter is a stateless recursive text splitter.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Splitter. size must be positive and overlap must be in [0, size).
func New(size, overlap int, opts ...Option) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, size)
	}

	s := &Splitter{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Size returns the maximum chunk length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks every unit in order. Each chunk copies its unit's metadata
// and receives a chunk_index that is sequential across the whole result.
func (s *Splitter) Split(units []document.Unit) []document.Chunk {
	var chunks []document.Chunk
	for _, u := range units {
		for _, text := range s.SplitText(u.Content) {
			meta := u.Metadata.Clone()
			meta[document.KeyChunkIndex] = len(chunks)
			chunks = append(chunks, document.Chunk{Content: text, Metadata: meta})
		}
	}
	return chunks
}

// SplitText splits a single text. The result never contains empty or
// whitespace-padded strings.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep, finer := pickSeparator(text, separators)

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepingSeparator(text, sep) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				out = append(out, trimmed)
			}
			continue
		}
		out = append(out, s.split(piece, finer)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// pickSeparator returns the first separator present in text and the finer
// separators after it. The empty separator always matches.
func pickSeparator(text string, separators []string) (string, []string) {
	if len(separators) == 0 {
		return "", nil
	}
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return separators[len(separators)-1], nil
}

// splitKeepingSeparator cuts text at sep, attaching each separator to the
// start of the piece that follows it. An empty sep cuts between runes.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, p := range parts[1:] {
		pieces = append(pieces, sep+p)
	}
	return pieces
}

// merge combines pieces into chunks of at most s.size runes. When a chunk
// is emitted, pieces are dropped from its front until at most s.overlap
// runes remain and the next piece fits.
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(current) > 0 {
			if chunk := join(current); chunk != "" {
				out = append(out, chunk)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if chunk := join(current); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
