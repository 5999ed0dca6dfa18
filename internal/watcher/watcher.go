// Package watcher runs merge passes when files arrive in the source folder.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig contains watcher settings.
type WatchConfig struct {
	DebounceSeconds   int      // Quiet period after the last event before a pass (default: 2)
	StableThresholdMs int      // File size stability threshold in milliseconds (default: 1000)
	IgnorePatterns    []string // Glob patterns to ignore (e.g., "*.tmp", "*.part", "*.download")
}

// DefaultWatchConfig returns a WatchConfig with sensible defaults.
func DefaultWatchConfig() *WatchConfig {
	return &WatchConfig{
		DebounceSeconds:   2,
		StableThresholdMs: 1000,
		IgnorePatterns:    DefaultIgnorePatterns(),
	}
}

// WatchSummary contains stats from the watch session.
type WatchSummary struct {
	Passes   int // Merge passes run
	Archives int // Archives written across all passes
	Failures int // Passes that returned an error
	Ignored  int // Events dropped by the ignore patterns
	Duration time.Duration
}

// PassHandler runs one merge pass restricted to the groups of the changed
// filenames and returns the archives it wrote.
type PassHandler func(ctx context.Context, changed []string) (archives []string, err error)

// Watcher monitors one folder and turns bursts of new files into merge passes.
// Passes never overlap: events arriving during a pass queue the next one.
type Watcher struct {
	config     *WatchConfig
	handler    PassHandler
	log        *slog.Logger
	fsWatcher  *fsnotify.Watcher
	fileFilter *FileFilter
	stability  *StabilityChecker
	debouncer  *Debouncer
	dir        string
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
	startTime  time.Time

	passMu sync.Mutex // held for the duration of a pass

	mu       sync.Mutex
	changed  map[string]struct{}  // basenames waiting for the next pass
	produced map[string]time.Time // archives written by a pass -> their mtime
	summary  WatchSummary
}

// New creates a new Watcher with the given configuration.
// If config is nil, default configuration is used.
func New(config *WatchConfig, handler PassHandler) *Watcher {
	if config == nil {
		config = DefaultWatchConfig()
	}
	w := &Watcher{
		config:     config,
		handler:    handler,
		log:        slog.Default().With("component", "watcher"),
		fileFilter: NewFileFilter(config.IgnorePatterns),
		stability:  NewStabilityChecker(time.Duration(config.StableThresholdMs) * time.Millisecond),
		done:       make(chan struct{}),
		changed:    make(map[string]struct{}),
		produced:   make(map[string]time.Time),
	}
	w.debouncer = NewDebouncer(time.Duration(config.DebounceSeconds)*time.Second, func(string) { w.runPass() })
	return w
}

// Start begins watching dir. The watcher runs until Stop is called.
func (w *Watcher) Start(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.fsWatcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absDir); err != nil {
		w.fsWatcher.Close()
		return err
	}

	w.dir = absDir
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.startTime = time.Now()
	w.done = make(chan struct{})

	w.wg.Add(1)
	go w.processEvents()

	w.log.Info("watching for new files", "dir", absDir)
	return nil
}

// Stop cancels any running pass, waits for it to return, and summarizes the session.
func (w *Watcher) Stop() *WatchSummary {
	if w.cancel != nil {
		w.cancel()
	}
	w.debouncer.CancelAll()
	close(w.done)
	w.wg.Wait()

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}

	// A pass a timer started before CancelAll still holds passMu.
	w.passMu.Lock()
	defer w.passMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	summary := w.summary
	summary.Duration = time.Since(w.startTime)
	return &summary
}

// processEvents handles file system events from fsnotify.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// handleEvent queues a created or written regular file for the next pass.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if w.fileFilter.ShouldIgnore(event.Name) {
		w.mu.Lock()
		w.summary.Ignored++
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	w.mu.Lock()
	if mtime, ok := w.produced[event.Name]; ok && info.ModTime().Equal(mtime) {
		w.mu.Unlock()
		return
	}
	w.changed[filepath.Base(event.Name)] = struct{}{}
	w.mu.Unlock()

	w.log.Debug("file queued", "file", event.Name)
	w.debouncer.Add(w.dir)
}

// runPass waits for the queued files to settle and hands them to the handler.
// Files still growing are queued again; files that vanished are dropped.
func (w *Watcher) runPass() {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	queued := make([]string, 0, len(w.changed))
	for name := range w.changed {
		queued = append(queued, name)
	}
	w.changed = make(map[string]struct{})
	w.mu.Unlock()
	sort.Strings(queued)

	var ready, requeue []string
	for _, name := range queued {
		err := w.stability.WaitForStable(w.ctx, filepath.Join(w.dir, name))
		switch {
		case err == nil:
			ready = append(ready, name)
		case errors.Is(err, ErrFileNotFound):
			w.log.Debug("queued file disappeared", "file", name)
		case w.ctx.Err() != nil:
			return
		default:
			w.log.Warn("file not settled, retrying later", "file", name, "error", err)
			requeue = append(requeue, name)
		}
	}
	if len(requeue) > 0 {
		w.mu.Lock()
		for _, name := range requeue {
			w.changed[name] = struct{}{}
		}
		w.mu.Unlock()
		w.debouncer.Add(w.dir)
	}
	if len(ready) == 0 || w.handler == nil {
		return
	}

	w.log.Info("merge pass started", "files", len(ready))
	archives, err := w.handler(w.ctx, ready)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.summary.Passes++
	w.summary.Archives += len(archives)
	for _, archive := range archives {
		w.remember(archive)
	}
	w.forgetProduced()
	if err != nil {
		w.summary.Failures++
		w.log.Error("merge pass failed", "error", err)
		return
	}
	w.log.Info("merge pass finished", "archives", len(archives))
}

// remember records an archive written by a pass so its own events do not
// trigger another pass. A later change to the file does.
func (w *Watcher) remember(archive string) {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return
	}
	if info, err := os.Stat(abs); err == nil {
		w.produced[abs] = info.ModTime()
	}
}

// forgetProduced drops queued names whose events came from this watcher's own
// archives while the pass was running.
func (w *Watcher) forgetProduced() {
	for name := range w.changed {
		path := filepath.Join(w.dir, name)
		mtime, ok := w.produced[path]
		if !ok {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().Equal(mtime) {
			delete(w.changed, name)
		}
	}
}
