package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

var (
	// ErrFileNotFound is returned when a queued file no longer exists.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileUnstable is returned when a file is still being written when
	// the timeout expires.
	ErrFileUnstable = errors.New("file did not stabilize within timeout")
)

const (
	defaultSettleTimeout = 30 * time.Second
	minPollInterval      = 50 * time.Millisecond
)

// StabilityChecker decides when a file has finished arriving. A ROM copied
// or downloaded into the source folder is only handed to a merge pass once
// neither its size nor its modification time has moved for the threshold.
type StabilityChecker struct {
	threshold time.Duration
	timeout   time.Duration
	interval  time.Duration
}

// NewStabilityChecker polls four times per threshold, but never more often
// than every 50ms, and gives up after 30 seconds.
func NewStabilityChecker(threshold time.Duration) *StabilityChecker {
	return NewStabilityCheckerWithOptions(threshold, defaultSettleTimeout, max(threshold/4, minPollInterval))
}

// NewStabilityCheckerWithOptions creates a StabilityChecker with custom timeout and interval.
func NewStabilityCheckerWithOptions(threshold, timeout, interval time.Duration) *StabilityChecker {
	return &StabilityChecker{threshold: threshold, timeout: timeout, interval: interval}
}

// fileState is what a write in progress changes.
type fileState struct {
	size  int64
	mtime time.Time
}

func stat(path string) (fileState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, ErrFileNotFound
	}
	if err != nil {
		return fileState{}, err
	}
	return fileState{size: info.Size(), mtime: info.ModTime()}, nil
}

// WaitForStable blocks until path has been unchanged for the threshold. A zero
// threshold only checks that the file exists.
func (s *StabilityChecker) WaitForStable(ctx context.Context, path string) error {
	last, err := stat(path)
	if err != nil || s.threshold <= 0 {
		return err
	}
	settledSince := time.Now()

	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()
	poll := time.NewTicker(s.interval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrFileUnstable
		case <-poll.C:
		}

		current, err := stat(path)
		if err != nil {
			return err
		}
		if current.size != last.size || !current.mtime.Equal(last.mtime) {
			last, settledSince = current, time.Now()
			continue
		}
		if time.Since(settledSince) >= s.threshold {
			return nil
		}
	}
}
