// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batchfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

const (
	defaultDebounce = 2 * time.Second
	queueSize       = 256
)

// FileProcessor handles one batch file.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) (types.BatchSummary, error)
}

// Watcher monitors a directory for batch files and processes them one at
// a time. Files present at start are picked up by an initial sweep; an
// optional cron schedule repeats the sweep for files whose events were
// missed.
type Watcher struct {
	dir        string
	extensions []string
	debounce   time.Duration
	schedule   string
	processor  FileProcessor
	logger     *zap.Logger

	queue  chan string
	mu     sync.Mutex
	queued map[string]bool
	timers map[string]*time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher for cfg.WatchDir.
func NewWatcher(cfg types.BatchConfig, p FileProcessor, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:        filepath.Clean(cfg.WatchDir),
		extensions: cfg.Extensions,
		debounce:   cfg.Debounce,
		schedule:   cfg.SweepSchedule,
		processor:  p,
		logger:     zap.NewNop(),
		queue:      make(chan string, queueSize),
		queued:     make(map[string]bool),
		timers:     make(map[string]*time.Timer),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if len(w.extensions) == 0 {
		w.extensions = []string{".txt"}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. The file being processed when ctx
// is cancelled finishes its in-flight extractions before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	if w.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.schedule, w.Sweep); err != nil {
			return fmt.Errorf("parsing sweep schedule %q: %w", w.schedule, err)
		}
		c.Start()
		defer c.Stop()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()

	w.logger.Info("watching for batch files",
		zap.String("dir", w.dir),
		zap.Strings("extensions", w.extensions),
		zap.String("sweep_schedule", w.schedule))
	w.Sweep()

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			wg.Wait()
			w.logger.Info("watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				w.stopTimers()
				wg.Wait()
				return errors.New("file watcher closed")
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.debounceEnqueue(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if ok && err != nil {
				w.logger.Warn("file watcher error", zap.Error(err))
			}
		}
	}
}

// Sweep queues every eligible file already in the directory.
func (w *Watcher) Sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("sweeping watch directory", zap.Error(err))
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.enqueue(filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			if w.eligible(path) {
				_, err := w.processor.ProcessFile(ctx, path)
				if err != nil {
					w.logger.Warn("batch file not completed", zap.String("file", path), zap.Error(err))
				}
			}
			w.mu.Lock()
			delete(w.queued, path)
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) debounceEnqueue(path string) {
	if !w.matchExtension(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.enqueue(path)
	})
}

func (w *Watcher) enqueue(path string) {
	if !w.eligible(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queued[path] {
		return
	}
	select {
	case w.queue <- path:
		w.queued[path] = true
		w.logger.Debug("queued batch file", zap.String("file", path))
	default:
		w.logger.Warn("batch queue full, file left for the next sweep", zap.String("file", path))
	}
}

// eligible reports whether path is an unprocessed regular batch file.
func (w *Watcher) eligible(path string) bool {
	if !w.matchExtension(path) || HasMarker(path) {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (w *Watcher) matchExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
