package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/localrag/internal/logging"
	"github.com/fyrsmithlabs/localrag/internal/rag"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingIngester) Refresh(_ context.Context, path string) (rag.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.err != nil {
		return rag.IngestResult{}, r.err
	}
	return rag.IngestResult{FilesProcessed: 1, ChunksCreated: 1, ChunksStored: 1}, nil
}

func (r *recordingIngester) Supports(path string) bool {
	switch filepath.Ext(path) {
	case ".txt", ".md":
		return true
	}
	return false
}

func (r *recordingIngester) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

const testDebounce = 100 * time.Millisecond

func startWatcher(t *testing.T, root string, ing Ingester) *logging.TestLogger {
	t.Helper()
	tl := logging.NewTestLogger()
	w, err := New(root, ing, Config{Debounce: testDebounce}, tl.Logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return tl
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	root := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, root, ing)

	path := filepath.Join(root, "notes.txt")
	writeFile(t, path, "one")
	writeFile(t, path, "one two")
	writeFile(t, path, "one two three")

	require.Eventually(t, func() bool { return len(ing.Paths()) == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, []string{path}, ing.Paths())
}

func TestWatcher_IgnoresUnsupportedAndHidden(t *testing.T) {
	root := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, root, ing)

	writeFile(t, filepath.Join(root, "image.png"), "x")
	writeFile(t, filepath.Join(root, ".draft.txt"), "x")
	writeFile(t, filepath.Join(root, "real.md"), "# real")

	require.Eventually(t, func() bool { return len(ing.Paths()) == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, []string{filepath.Join(root, "real.md")}, ing.Paths())
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, root, ing)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher time to register the new directory.
	time.Sleep(testDebounce)
	writeFile(t, filepath.Join(sub, "a.txt"), "alpha")

	require.Eventually(t, func() bool {
		for _, p := range ing.Paths() {
			if strings.HasSuffix(p, filepath.Join("sub", "a.txt")) {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_ExistingSubdirectoriesWatched(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	ing := &recordingIngester{}
	startWatcher(t, root, ing)

	path := filepath.Join(sub, "b.md")
	writeFile(t, path, "beta")

	require.Eventually(t, func() bool { return len(ing.Paths()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, path, ing.Paths()[0])
}

func TestWatcher_LogsIngestErrors(t *testing.T) {
	root := t.TempDir()
	ing := &recordingIngester{err: errors.New("embedding backend down")}
	tl := startWatcher(t, root, ing)

	writeFile(t, filepath.Join(root, "c.txt"), "gamma")

	require.Eventually(t, func() bool {
		return tl.FilterMessage("failed to ingest changed file").Len() == 1
	}, 3*time.Second, 10*time.Millisecond)
	tl.AssertLogged(t, zapcore.ErrorLevel, "failed to ingest changed file")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &recordingIngester{}, Config{}, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	writeFile(t, file, "x")
	_, err = New(file, &recordingIngester{}, Config{}, nil)
	assert.ErrorContains(t, err, "not a directory")

	_, err = New(t.TempDir(), nil, Config{}, nil)
	assert.ErrorContains(t, err, "ingester is required")
}
