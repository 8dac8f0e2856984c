package watcher

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/localrag/internal/chunker"
	"github.com/fyrsmithlabs/localrag/internal/ingestion"
	"github.com/fyrsmithlabs/localrag/internal/parser"
	"github.com/fyrsmithlabs/localrag/internal/rag"
	"github.com/fyrsmithlabs/localrag/internal/retrieval"
	"github.com/fyrsmithlabs/localrag/internal/vectorstore"
)

type wordEmbedder struct{}

func (wordEmbedder) vector(text string) []float32 {
	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[f.Sum32()%31]++
	}
	v[31] = 0.01
	return v
}

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

type echoLLM struct{}

func (echoLLM) Generate(context.Context, string, string) (string, error) { return "ok", nil }
func (echoLLM) Model() string { return "echo" }

func newIndexService(t *testing.T) *rag.Service {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	splitter, err := chunker.New(512, 50)
	require.NoError(t, err)
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir()}, logger)
	require.NoError(t, err)
	engine, err := retrieval.NewEngine(ctx, store, wordEmbedder{}, retrieval.Config{CollectionName: "watch_test"}, logger)
	require.NoError(t, err)

	svc, err := rag.New(rag.Options{
		Pipeline: ingestion.New(parser.New(), splitter, logger),
		Engine:   engine,
		LLM:      echoLLM{},
		Closers:  []func() error{engine.Close},
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// indexedTexts returns the chunk texts a broad query retrieves, or nil on
// error. It runs inside Eventually, off the test goroutine.
func indexedTexts(svc *rag.Service) []string {
	ans, err := svc.Query(context.Background(), "the sky is", 10)
	if err != nil {
		return nil
	}
	texts := make([]string, len(ans.Sources))
	for i, src := range ans.Sources {
		texts[i] = src.ChunkText
	}
	return texts
}

func TestWatcher_EditReplacesIndexedChunks(t *testing.T) {
	root := t.TempDir()
	svc := newIndexService(t)
	startWatcher(t, root, svc)

	path := filepath.Join(root, "notes.txt")
	writeFile(t, path, "the sky is blue")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"the sky is blue"}, indexedTexts(svc))
	}, 3*time.Second, 20*time.Millisecond)

	writeFile(t, path, "the sky is green")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"the sky is green"}, indexedTexts(svc))
	}, 3*time.Second, 20*time.Millisecond)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunkCount)
}
