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
)

// recorder is a PassHandler that records the changed names of every pass.
type recorder struct {
	mu     sync.Mutex
	passes [][]string
	fn     func(changed []string) ([]string, error)
}

func (r *recorder) handle(_ context.Context, changed []string) ([]string, error) {
	r.mu.Lock()
	r.passes = append(r.passes, append([]string(nil), changed...))
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(changed)
	}
	return nil, nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.passes...)
}

// fastConfig disables debounce and stability waits beyond a short quiet period.
func fastConfig() *WatchConfig {
	return &WatchConfig{DebounceSeconds: 0, StableThresholdMs: 0, IgnorePatterns: DefaultIgnorePatterns()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("rom"), 0644); err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
}

func TestWatcher_NewFileTriggersPass(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	w := New(fastConfig(), rec.handle)
	if err := w.Start(dir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	writeFile(t, filepath.Join(dir, "Super Mario World (U).smc"))
	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })

	summary := w.Stop()
	passes := rec.snapshot()
	if passes[0][0] != "Super Mario World (U).smc" {
		t.Errorf("expected the new file in the pass, got %v", passes[0])
	}
	if summary.Passes < 1 || summary.Failures != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestWatcher_IgnoresTemporaryFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	w := New(fastConfig(), rec.handle)
	if err := w.Start(dir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	writeFile(t, filepath.Join(dir, "Zelda (E).zip.part"))
	writeFile(t, filepath.Join(dir, "notes.tmp"))
	if err := os.Mkdir(filepath.Join(dir, "subfolder"), 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	summary := w.Stop()
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("expected no passes, got %d", n)
	}
	if summary.Ignored < 2 {
		t.Errorf("expected at least 2 ignored events, got %d", summary.Ignored)
	}
}

func TestWatcher_BurstBecomesOnePass(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	cfg := fastConfig()
	cfg.DebounceSeconds = 1
	w := New(cfg, rec.handle)
	if err := w.Start(dir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	names := []string{"Rom (E).smc", "Rom (J).smc", "Rom (U).smc"}
	for _, name := range names {
		writeFile(t, filepath.Join(dir, name))
		time.Sleep(50 * time.Millisecond)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })
	time.Sleep(200 * time.Millisecond)

	passes := rec.snapshot()
	if len(passes) != 1 {
		t.Fatalf("expected one pass, got %v", passes)
	}
	if strings.Join(passes[0], "|") != strings.Join(names, "|") {
		t.Errorf("expected sorted names %v, got %v", names, passes[0])
	}
}

func TestWatcher_OwnArchivesDoNotTriggerPasses(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	rec.fn = func(changed []string) ([]string, error) {
		if changed[0] == "Rom.7z" {
			return nil, nil
		}
		archive := filepath.Join(dir, "Rom.7z")
		if err := os.WriteFile(archive, []byte("7z"), 0644); err != nil {
			return nil, err
		}
		for _, name := range changed {
			os.Remove(filepath.Join(dir, name))
		}
		return []string{archive}, nil
	}

	w := New(fastConfig(), rec.handle)
	if err := w.Start(dir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	writeFile(t, filepath.Join(dir, "Rom (U).smc"))
	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })
	time.Sleep(300 * time.Millisecond)

	summary := w.Stop()
	if passes := rec.snapshot(); len(passes) != 1 {
		t.Errorf("expected exactly one pass, got %v", passes)
	}
	if summary.Archives != 1 {
		t.Errorf("expected 1 archive, got %d", summary.Archives)
	}
}

func TestWatcher_FailedPassIsCounted(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{fn: func([]string) ([]string, error) { return nil, errors.New("7z exited 2") }}

	w := New(fastConfig(), rec.handle)
	if err := w.Start(dir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	writeFile(t, filepath.Join(dir, "Rom (U).smc"))
	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })

	summary := w.Stop()
	if summary.Passes < 1 || summary.Failures != summary.Passes {
		t.Errorf("expected every pass to fail, got %+v", summary)
	}
}

func TestWatcher_StartWithInvalidDirectory(t *testing.T) {
	w := New(nil, nil)
	if err := w.Start(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error for a missing directory")
		w.Stop()
	}
}

func TestWatcher_DefaultConfig(t *testing.T) {
	w := New(nil, nil)
	cfg := w.config
	if cfg.DebounceSeconds != 2 || cfg.StableThresholdMs != 1000 || len(cfg.IgnorePatterns) == 0 {
		t.Errorf("unexpected default config %+v", cfg)
	}
	if w.fsWatcher != nil {
		t.Error("watcher should not be running before Start")
	}
}
