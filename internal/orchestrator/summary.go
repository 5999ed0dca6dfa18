package orchestrator

import (
	"fmt"
	"time"

	"goodmerge/internal/audit"
)

// Summary reports what a run did.
type Summary struct {
	TotalFiles int      // Files in the universe
	Kept       int      // Files with a recognized extension
	Groups     int      // Groups the run acted on
	Archives   []string // Archives written, in group order
	Staged     int      // Files staged into a workspace
	Skipped    int      // Groups without members
	DryRun     bool     // The grouping was printed instead of applied
	Duration   time.Duration
}

// String returns the one-line summary printed at the end of a run.
func (s *Summary) String() string {
	if s.DryRun {
		return fmt.Sprintf("Grouped %d of %d files into %d groups (dry run, nothing written) in %s",
			s.Kept, s.TotalFiles, s.Groups, s.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("Wrote %d archives from %d files in %d groups (%d empty skipped, %d of %d files recognized) in %s",
		len(s.Archives), s.Staged, s.Groups, s.Skipped, s.Kept, s.TotalFiles, s.Duration.Round(time.Millisecond))
}

// audit converts the summary for the RUN_END event.
func (s *Summary) audit(errors int) audit.RunSummary {
	return audit.RunSummary{
		TotalFiles: s.TotalFiles,
		Kept:       s.Kept,
		Groups:     s.Groups,
		Archives:   len(s.Archives),
		Staged:     s.Staged,
		Skipped:    s.Skipped,
		Errors:     errors,
	}
}
