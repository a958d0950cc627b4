package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TheBushidoCollective/han-sub006/internal/logging"
)

// debounceWindow coalesces the burst of write events a single logical
// append produces.
const debounceWindow = 100 * time.Millisecond

// Watcher tails the session log tree and reports changed files.
type Watcher struct {
	root        string
	reconcile   time.Duration
	logger      *slog.Logger
	onFile      func(ctx context.Context, path string)
	onReconcile func(ctx context.Context)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New constructs a watcher over root. onFile fires once per changed .jsonl
// file after the debounce window; onReconcile fires every reconcile
// interval.
func New(root string, reconcile time.Duration, logger *slog.Logger, onFile func(ctx context.Context, path string), onReconcile func(ctx context.Context)) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		root:        root,
		reconcile:   reconcile,
		logger:      logging.NewComponentLogger(logger, "watcher"),
		onFile:      onFile,
		onReconcile: onReconcile,
		pending:     make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. The watch root is created when
// missing so a fresh machine starts cleanly.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create watch root: %w", err)
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer notifier.Close()
	defer w.drainTimers()

	if err := w.addRecursive(notifier, w.root); err != nil {
		return err
	}

	ticker := time.NewTicker(w.reconcile)
	defer ticker.Stop()

	w.logger.Info("watching session logs", logging.String(logging.FieldPath, w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.onReconcile != nil {
				w.onReconcile(ctx)
			}
		case event, ok := <-notifier.Events:
			if !ok {
				return errors.New("fsnotify event channel closed")
			}
			w.handleEvent(ctx, notifier, event)
		case err, ok := <-notifier.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed")
			}
			w.logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, notifier *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// New project directory: watch it and pick up any files
			// written before the watch was in place.
			if err := w.addRecursive(notifier, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					logging.String(logging.FieldPath, event.Name),
					logging.Error(err))
			}
			w.scanDir(ctx, event.Name)
			return
		}
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	w.debounce(ctx, event.Name)
}

// debounce schedules the file callback after the debounce window, resetting
// the window when further events arrive for the same path.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(debounceWindow)
		return
	}
	w.pending[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if w.onFile != nil {
			w.onFile(ctx, path)
		}
	})
}

func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) addRecursive(notifier *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if err := notifier.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) scanDir(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		w.debounce(ctx, filepath.Join(dir, entry.Name()))
	}
}
