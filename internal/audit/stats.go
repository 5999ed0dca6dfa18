package audit

import (
	"fmt"
	"time"
)

// Stats contains aggregate metrics across all audited runs.
type Stats struct {
	TotalRuns     int
	FailedRuns    int
	TotalArchives int
	TotalStaged   int
	FirstRun      time.Time
	LastRun       time.Time
}

// AggregateStats computes metrics across all runs in logDir, optionally
// limited to runs started at or after since.
func AggregateStats(logDir string, since *time.Time) (*Stats, error) {
	runs, err := NewReader(logDir).ListRuns()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	stats := &Stats{}
	for _, run := range runs {
		if since != nil && run.StartTime.Before(*since) {
			continue
		}
		stats.TotalRuns++
		if run.Status == RunStatusFailed || run.Status == RunStatusInterrupted {
			stats.FailedRuns++
		}
		stats.TotalArchives += run.Summary.Archives
		stats.TotalStaged += run.Summary.Staged

		if stats.FirstRun.IsZero() || run.StartTime.Before(stats.FirstRun) {
			stats.FirstRun = run.StartTime
		}
		if run.StartTime.After(stats.LastRun) {
			stats.LastRun = run.StartTime
		}
	}
	return stats, nil
}
