// Package watcher re-ingests documents as they change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/rag"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Ingester indexes files. Refresh replaces whatever was indexed for the file
// before. rag.Service satisfies it.
type Ingester interface {
	Refresh(ctx context.Context, path string) (rag.IngestResult, error)
	Supports(path string) bool
}

var _ Ingester = (*rag.Service)(nil)

// Config configures a Watcher.
type Config struct {
	// Debounce is how long a file must stay unchanged before it is ingested.
	Debounce time.Duration
}

// Watcher ingests supported files created or written under a directory
// tree. Rapid successive events for one path collapse into a single ingest,
// and ingests run one at a time.
type Watcher struct {
	root     string
	fs       *fsnotify.Watcher
	ingester Ingester
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	ready chan string
	done  chan struct{}
}

// New creates a Watcher for root, which must be a directory.
func New(root string, ingester Ingester, cfg Config, logger *zap.Logger) (*Watcher, error) {
	if ingester == nil {
		return nil, errors.New("watcher: ingester is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		root:     root,
		fs:       fw,
		ingester: ingester,
		debounce: cfg.Debounce,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is canceled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	w.logger.Info("watching for document changes",
		zap.String("root", w.root),
		zap.Duration("debounce", w.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case path := <-w.ready:
			w.ingest(ctx, path)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if hidden(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
		return
	}
	if !info.Mode().IsRegular() || !w.ingester.Supports(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	result, err := w.ingester.Refresh(ctx, path)
	if err != nil {
		w.logger.Error("failed to ingest changed file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("ingested changed file",
		zap.String("path", path),
		zap.Int("chunks_stored", result.ChunksStored),
	)
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) close() {
	close(w.done)

	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if err := w.fs.Close(); err != nil {
		w.logger.Warn("failed to close watcher", zap.Error(err))
	}
}

// hidden reports dot files and directories, which editors use for swap and
// lock files.
func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
