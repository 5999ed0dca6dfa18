// Package audit records what a goodmerge run did to the source folder in an
// append-only JSON Lines log: which files were staged into which group, which
// archives were written, and how the run ended.
package audit

import "time"

// RunID is a unique identifier for each program execution.
// It uses UUID v4 format: "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"
type RunID string

// EventType represents the type of audit event.
type EventType string

const (
	// Run lifecycle events
	EventRunStart EventType = "RUN_START"
	EventRunEnd   EventType = "RUN_END"

	// Repack events
	EventMemberStaged   EventType = "MEMBER_STAGED"
	EventArchiveCreated EventType = "ARCHIVE_CREATED"
	EventGroupSkipped   EventType = "GROUP_SKIPPED"
	EventError          EventType = "ERROR"

	// System events
	EventRotation       EventType = "ROTATION"
	EventLogInitialized EventType = "LOG_INITIALIZED"
)

// OperationStatus represents the outcome of an operation.
type OperationStatus string

const (
	StatusSuccess OperationStatus = "SUCCESS"
	StatusFailure OperationStatus = "FAILURE"
	StatusSkipped OperationStatus = "SKIPPED"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusInProgress  RunStatus = "IN_PROGRESS"
	RunStatusCompleted   RunStatus = "COMPLETED"
	RunStatusFailed      RunStatus = "FAILED"
	RunStatusInterrupted RunStatus = "INTERRUPTED"
)

// RunType represents what started the run.
type RunType string

const (
	RunTypeMerge RunType = "MERGE"
	RunTypeWatch RunType = "WATCH"
)

// ErrorDetails contains detailed information about an error.
type ErrorDetails struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
	Operation    string `json:"operation"`
}

// AuditEvent represents a single audit record.
type AuditEvent struct {
	Timestamp       time.Time         `json:"timestamp"`
	RunID           RunID             `json:"runId"`
	EventType       EventType         `json:"eventType"`
	Status          OperationStatus   `json:"status"`
	Group           string            `json:"group,omitempty"`           // Group key the event belongs to
	SourcePath      string            `json:"sourcePath,omitempty"`      // File taken from the source folder
	DestinationPath string            `json:"destinationPath,omitempty"` // Archive written
	ErrorDetails    *ErrorDetails     `json:"errorDetails,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// RunSummary contains statistics for a completed run.
type RunSummary struct {
	TotalFiles int `json:"totalFiles"` // Files in the universe
	Kept       int `json:"kept"`       // Files left after extension filtering
	Groups     int `json:"groups"`
	Archives   int `json:"archives"`
	Staged     int `json:"staged"`
	Skipped    int `json:"skipped"` // Empty groups
	Errors     int `json:"errors"`
}

// RunInfo contains metadata and summary for a run.
type RunInfo struct {
	RunID      RunID      `json:"runId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Status     RunStatus  `json:"status"`
	RunType    RunType    `json:"runType"`
	AppVersion string     `json:"appVersion"`
	Source     string     `json:"source,omitempty"`
	Summary    RunSummary `json:"summary"`
}

// Config holds configuration for the audit log.
type Config struct {
	Enabled      bool   `yaml:"enabled"`
	LogDirectory string `yaml:"log_directory,omitempty"`
	RotationSize int64  `yaml:"rotation_size_bytes,omitempty"` // Rotate when the active log exceeds this size
}

// DefaultConfig returns a Config with sensible defaults. Auditing is off
// unless enabled.
func DefaultConfig() Config {
	return Config{
		LogDirectory: ".goodmerge/audit",
		RotationSize: 10 * 1024 * 1024, // 10MB
	}
}
