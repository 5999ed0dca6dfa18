package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewStabilityChecker_Interval(t *testing.T) {
	tests := []struct {
		threshold time.Duration
		interval  time.Duration
	}{
		{time.Second, 250 * time.Millisecond},
		{100 * time.Millisecond, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		s := NewStabilityChecker(tt.threshold)
		if s.interval != tt.interval || s.timeout != 30*time.Second || s.threshold != tt.threshold {
			t.Errorf("NewStabilityChecker(%v) = %+v", tt.threshold, s)
		}
	}
}

func TestWaitForStable_StableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Rom (U).smc")
	if err := os.WriteFile(path, []byte("rom"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStabilityCheckerWithOptions(50*time.Millisecond, time.Second, 10*time.Millisecond)
	start := time.Now()
	if err := s.WaitForStable(context.Background(), path); err != nil {
		t.Fatalf("WaitForStable failed: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("WaitForStable returned before the threshold elapsed")
	}
}

func TestWaitForStable_ZeroThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Rom (U).smc")
	if err := os.WriteFile(path, []byte("rom"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := NewStabilityChecker(0).WaitForStable(context.Background(), path); err != nil {
		t.Errorf("expected an existing file to pass immediately, got %v", err)
	}
}

func TestWaitForStable_MissingFile(t *testing.T) {
	err := NewStabilityChecker(0).WaitForStable(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestWaitForStable_GrowingFileTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Rom (U).smc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = f.Write([]byte("x"))
			}
		}
	}()

	s := NewStabilityCheckerWithOptions(100*time.Millisecond, 150*time.Millisecond, 10*time.Millisecond)
	if err := s.WaitForStable(context.Background(), path); !errors.Is(err, ErrFileUnstable) {
		t.Errorf("expected ErrFileUnstable, got %v", err)
	}
}

func TestWaitForStable_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Rom (U).smc")
	if err := os.WriteFile(path, []byte("rom"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStabilityCheckerWithOptions(time.Second, 5*time.Second, 10*time.Millisecond)
	if err := s.WaitForStable(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
