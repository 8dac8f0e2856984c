package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/config"
	"github.com/fyrsmithlabs/localrag/internal/rag"
	"github.com/fyrsmithlabs/localrag/internal/retrieval"
)

type fakeService struct {
	ingested []string
	question string
	topK     int
	resets   int
	closed   bool
}

func (f *fakeService) Ingest(_ context.Context, path string) (rag.IngestResult, error) {
	f.ingested = append(f.ingested, path)
	return rag.IngestResult{FilesProcessed: 2, ChunksCreated: 5, ChunksStored: 5}, nil
}

func (f *fakeService) Refresh(ctx context.Context, path string) (rag.IngestResult, error) {
	return f.Ingest(ctx, path)
}

func (f *fakeService) Query(_ context.Context, question string, topK int) (*rag.Answer, error) {
	f.question, f.topK = question, topK
	page := 3
	return &rag.Answer{
		Answer: "Revenue was $4M.",
		Sources: []rag.Citation{
			{Document: "report.pdf", Page: &page, ChunkText: "Q3 revenue $4M", RelevanceScore: 0.8731},
			{Document: "notes.md", ChunkText: "revenue notes", RelevanceScore: 0.5},
		},
		Model: "llama3.2",
		Mode:  "local",
	}, nil
}

func (f *fakeService) Stats(context.Context) (retrieval.Stats, error) {
	return retrieval.Stats{CollectionName: "localrag_docs", TotalChunkCount: 42, StorageLocation: "./data/chroma"}, nil
}

func (f *fakeService) Reset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeService) Supports(string) bool { return true }

func (f *fakeService) Close() error {
	f.closed = true
	return nil
}

// runCLI executes the root command against a fake service with an isolated
// HOME and fresh flag values.
func runCLI(t *testing.T, stdin string, args ...string) (*fakeService, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOCALRAG_LOG_LEVEL", "error")

	configPath, modeFlag = "", ""
	queryTopK, queryJSON = 0, false
	resetYes, watchInitial = false, false

	svc := &fakeService{}
	orig := newService
	newService = func(context.Context, *config.Config, *zap.Logger) (ragService, error) {
		return svc, nil
	}
	t.Cleanup(func() { newService = orig })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return svc, out.String(), err
}

func TestVersionCmd(t *testing.T) {
	_, out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "localrag dev")
}

func TestIngestCmd(t *testing.T) {
	svc, out, err := runCLI(t, "", "ingest", "./docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"./docs"}, svc.ingested)
	assert.Contains(t, out, "Files processed: 2")
	assert.Contains(t, out, "Chunks stored:   5")
	assert.True(t, svc.closed)
}

func TestIngestCmd_RequiresPath(t *testing.T) {
	_, _, err := runCLI(t, "", "ingest")
	assert.Error(t, err)
}

func TestQueryCmd(t *testing.T) {
	svc, out, err := runCLI(t, "", "query", "--top-k", "7", "What", "was", "revenue?")
	require.NoError(t, err)

	assert.Equal(t, "What was revenue?", svc.question)
	assert.Equal(t, 7, svc.topK)
	assert.Contains(t, out, "Revenue was $4M.")
	assert.Contains(t, out, "[1] report.pdf, page 3 (score 0.8731)")
	assert.Contains(t, out, "[2] notes.md (score 0.5000)")
}

func TestQueryCmd_JSON(t *testing.T) {
	_, out, err := runCLI(t, "", "query", "--json", "revenue?")
	require.NoError(t, err)

	var answer rag.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "llama3.2", answer.Model)
	assert.Equal(t, "local", answer.Mode)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "report.pdf", answer.Sources[0].Document)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	assert.Equal(t, "local", raw["mode"])
	first := raw["sources"].([]any)[0].(map[string]any)
	assert.Equal(t, "report.pdf", first["document"])
	assert.NotContains(t, first, "source")
}

func TestStatsCmd(t *testing.T) {
	_, out, err := runCLI(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Collection: localrag_docs")
	assert.Contains(t, out, "Chunks:     42")
}

func TestResetCmd(t *testing.T) {
	t.Run("aborts without confirmation", func(t *testing.T) {
		svc, out, err := runCLI(t, "n\n", "reset")
		require.NoError(t, err)
		assert.Equal(t, 0, svc.resets)
		assert.Contains(t, out, "Aborted.")
	})

	t.Run("confirms interactively", func(t *testing.T) {
		svc, out, err := runCLI(t, "yes\n", "reset")
		require.NoError(t, err)
		assert.Equal(t, 1, svc.resets)
		assert.Contains(t, out, "Index reset.")
	})

	t.Run("yes flag skips prompt", func(t *testing.T) {
		svc, out, err := runCLI(t, "", "reset", "--yes")
		require.NoError(t, err)
		assert.Equal(t, 1, svc.resets)
		assert.NotContains(t, out, "[y/N]")
	})
}

func TestModeFlag(t *testing.T) {
	_, _, err := runCLI(t, "", "--mode", "hybrid", "stats")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, _, err = runCLI(t, "", "--mode", "cloud", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai_api_key")
}

func TestSetup_ServiceError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath, modeFlag = "", ""

	orig := newService
	newService = func(context.Context, *config.Config, *zap.Logger) (ragService, error) {
		return nil, errors.New("ollama unreachable")
	}
	t.Cleanup(func() { newService = orig })

	_, err := setup(context.Background())
	assert.ErrorContains(t, err, "ollama unreachable")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunServe(t *testing.T) {
	port := freePort(t)
	a := &app{
		cfg: &config.Config{
			Mode:            config.ModeLocal,
			APIHost:         "127.0.0.1",
			APIPort:         port,
			UploadPath:      t.TempDir(),
			ShutdownTimeout: 5 * time.Second,
		},
		logger:  zap.NewNop(),
		service: &fakeService{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, a, nil) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/api/v1/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestRunWatch_Initial(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeService{}
	a := &app{
		cfg:     &config.Config{WatchDebounce: 50 * time.Millisecond},
		logger:  zap.NewNop(),
		service: svc,
	}

	watchInitial = true
	t.Cleanup(func() { watchInitial = false })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, runWatch(ctx, a, &out, dir))
	assert.Equal(t, []string{dir}, svc.ingested)
	assert.Contains(t, out.String(), "Initial ingest: 2 files, 5 chunks")
	assert.Contains(t, out.String(), "Watching "+dir)
}
