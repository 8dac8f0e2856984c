package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testCollection = "test_docs"

func newTestChromem(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDocs() []Document {
	return []Document{
		{
			ID:        "a",
			Content:   "alpha",
			Metadata:  map[string]any{"source": "a.txt", "chunk_index": 0},
			Embedding: []float32{1, 0, 0},
		},
		{
			ID:        "b",
			Content:   "beta",
			Metadata:  map[string]any{"source": "b.pdf", "page": 2, "chunk_index": 1},
			Embedding: []float32{0, 1, 0},
		},
		{
			ID:        "c",
			Content:   "gamma",
			Metadata:  map[string]any{"source": "c.md", "chunk_index": 2},
			Embedding: []float32{0.8, 0.6, 0},
		},
	}
}

func TestChromemStore_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	require.NoError(t, store.AddDocuments(ctx, testCollection, sampleDocs()))

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := store.Query(ctx, testCollection, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "c", results[1].ID)
	assert.InDelta(t, 0.8, results[1].Score, 1e-5)
	assert.Equal(t, "a.txt", results[0].Metadata["source"])
	assert.Equal(t, 0, results[0].Metadata["chunk_index"])
}

func TestChromemStore_QueryCapsK(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	require.NoError(t, store.AddDocuments(ctx, testCollection, sampleDocs()))

	results, err := store.Query(ctx, testCollection, []float32{0, 1, 0}, 50)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, 2, results[0].Metadata["page"])
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	require.NoError(t, store.EnsureCollection(ctx, testCollection))

	results, err := store.Query(ctx, testCollection, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChromemStore_MissingCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	exists, err := store.CollectionExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Count(ctx, "missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.True(t, IsNotFound(err))

	_, err = store.Query(ctx, "missing", []float32{1}, 1)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestChromemStore_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	require.NoError(t, store.AddDocuments(ctx, testCollection, sampleDocs()))

	require.NoError(t, store.DeleteCollection(ctx, testCollection))
	exists, err := store.CollectionExists(ctx, testCollection)
	require.NoError(t, err)
	assert.False(t, exists)

	// idempotent
	require.NoError(t, store.DeleteCollection(ctx, testCollection))

	require.NoError(t, store.EnsureCollection(ctx, testCollection))
	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, first.AddDocuments(ctx, testCollection, sampleDocs()))
	require.NoError(t, first.Close())

	second, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	n, err := second.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, dir, Location(second))
}

func TestChromemStore_Validation(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	err := store.EnsureCollection(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	err = store.AddDocuments(ctx, testCollection, []Document{{ID: "x", Content: "no vector"}})
	assert.ErrorIs(t, err, ErrMissingEmbedding)

	_, err = store.Query(ctx, testCollection, []float32{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.NoError(t, store.AddDocuments(ctx, testCollection, nil))
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"localrag_docs", false},
		{"abc123", false},
		{"", true},
		{"UPPER", true},
		{"with-dash", true},
		{"../etc", true},
		{string(make([]byte, 65)), true},
	}
	for _, tt := range tests {
		err := ValidateCollectionName(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidCollectionName, tt.name)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}

func TestMetadataConversion(t *testing.T) {
	in := map[string]any{
		"source":      "report.pdf",
		"page":        3,
		"chunk_index": 7,
		"score":       0.5,
		"flag":        true,
		"skip":        nil,
	}
	flat := stringifyMetadata(in)
	assert.Equal(t, map[string]string{
		"source":      "report.pdf",
		"page":        "3",
		"chunk_index": "7",
		"score":       "0.5",
		"flag":        "true",
	}, flat)

	back := typeMetadata(flat)
	assert.Equal(t, 3, back["page"])
	assert.Equal(t, 7, back["chunk_index"])
	assert.Equal(t, "report.pdf", back["source"])
	assert.Equal(t, "0.5", back["score"])

	assert.Equal(t, "x", typeMetadata(map[string]string{"page": "x"})["page"])
}

func TestChromemStore_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	require.NoError(t, store.DeleteBySource(ctx, testCollection, "a.txt"), "missing collection")

	docs := append(sampleDocs(), Document{
		ID:        "a2",
		Content:   "alpha again",
		Metadata:  map[string]any{"source": "a.txt", "chunk_index": 3},
		Embedding: []float32{0.9, 0.1, 0},
	})
	require.NoError(t, store.AddDocuments(ctx, testCollection, docs))

	require.NoError(t, store.DeleteBySource(ctx, testCollection, "a.txt"))
	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := store.Query(ctx, testCollection, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a.txt", r.Metadata["source"])
	}

	require.NoError(t, store.DeleteBySource(ctx, testCollection, "unknown.txt"))
	n, err = store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, store.DeleteBySource(ctx, testCollection, ""), ErrInvalidConfig)
}
