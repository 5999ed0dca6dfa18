package audit

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// Reader reads audit events across the active log and its rotated segments.
type Reader struct {
	logDir string
}

// NewReader creates a new Reader for the given log directory.
func NewReader(logDir string) *Reader {
	return &Reader{logDir: logDir}
}

// ListRuns returns all runs with summary information, oldest first.
func (r *Reader) ListRuns() ([]RunInfo, error) {
	events, err := r.readAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return extractRunInfos(events), nil
}

// GetRun returns all events for a specific run.
func (r *Reader) GetRun(runID RunID) ([]AuditEvent, error) {
	events, err := r.readAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var runEvents []AuditEvent
	for _, event := range events {
		if event.RunID == runID {
			runEvents = append(runEvents, event)
		}
	}
	if len(runEvents) == 0 {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return runEvents, nil
}

// GetLatestRun returns the most recent run by start timestamp.
func (r *Reader) GetLatestRun() (*RunInfo, error) {
	runs, err := r.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs found")
	}
	return &runs[len(runs)-1], nil
}

// readAllEvents reads every event from every log file in chronological order.
func (r *Reader) readAllEvents() ([]AuditEvent, error) {
	logFiles, err := GetAllLogFiles(r.logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get log files: %w", err)
	}

	var allEvents []AuditEvent
	for _, logFile := range logFiles {
		events, err := readEventsFromFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read events from %s: %w", logFile, err)
		}
		allEvents = append(allEvents, events...)
	}
	return allEvents, nil
}

func readEventsFromFile(filePath string) ([]AuditEvent, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(file)
	const maxScanTokenSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event, err := UnmarshalJSONLine(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", lineNum, err)
		}
		events = append(events, *event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return events, nil
}

// extractRunInfos groups events by run and summarizes each run.
func extractRunInfos(events []AuditEvent) []RunInfo {
	runEvents := make(map[RunID][]AuditEvent)
	for _, event := range events {
		if event.RunID == "" {
			continue // system events
		}
		runEvents[event.RunID] = append(runEvents[event.RunID], event)
	}

	runs := make([]RunInfo, 0, len(runEvents))
	for runID, events := range runEvents {
		runs = append(runs, buildRunInfo(runID, events))
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartTime.Equal(runs[j].StartTime) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].StartTime.Before(runs[j].StartTime)
	})
	return runs
}

// buildRunInfo counts the run's events; a RUN_END summary, when present,
// replaces the counts.
func buildRunInfo(runID RunID, events []AuditEvent) RunInfo {
	info := RunInfo{
		RunID:   runID,
		Status:  RunStatusInProgress,
		RunType: RunTypeMerge,
	}

	for _, event := range events {
		switch event.EventType {
		case EventRunStart:
			info.StartTime = event.Timestamp
			info.Source = event.SourcePath
			if event.Metadata != nil {
				info.AppVersion = event.Metadata["appVersion"]
				if runType, ok := event.Metadata["runType"]; ok {
					info.RunType = RunType(runType)
				}
			}

		case EventRunEnd:
			endTime := event.Timestamp
			info.EndTime = &endTime
			if event.Metadata != nil {
				if status, ok := event.Metadata["status"]; ok {
					info.Status = RunStatus(status)
				}
				info.Summary = parseSummaryFromMetadata(event.Metadata)
			}

		case EventMemberStaged:
			info.Summary.Staged++
		case EventArchiveCreated:
			info.Summary.Archives++
		case EventGroupSkipped:
			info.Summary.Skipped++
		case EventError:
			info.Summary.Errors++
		}
	}

	return info
}

func parseSummaryFromMetadata(metadata map[string]string) RunSummary {
	var summary RunSummary
	for key, dst := range map[string]*int{
		"totalFiles": &summary.TotalFiles,
		"kept":       &summary.Kept,
		"groups":     &summary.Groups,
		"archives":   &summary.Archives,
		"staged":     &summary.Staged,
		"skipped":    &summary.Skipped,
		"errors":     &summary.Errors,
	} {
		if v, ok := metadata[key]; ok {
			*dst, _ = strconv.Atoi(v)
		}
	}
	return summary
}
