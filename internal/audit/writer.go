package audit

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Writer appends events to the audit log. Every event is flushed and synced
// before the call returns, and any write failure is returned so the run can
// stop instead of continuing unrecorded.
type Writer struct {
	mu              sync.Mutex
	file            *os.File
	writer          *bufio.Writer
	logPath         string
	currentRun      *RunID
	config          Config
	rotationManager *RotationManager
}

// NewWriter creates the log directory if needed and opens the active log for
// appending. A new log starts with a LOG_INITIALIZED event.
func NewWriter(config Config) (*Writer, error) {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(config.LogDirectory, ActiveLogName)
	isNewLog := false
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		isNewLog = true
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	w := &Writer{
		file:            file,
		writer:          bufio.NewWriter(file),
		logPath:         logPath,
		config:          config,
		rotationManager: NewRotationManager(config),
	}

	if isNewLog {
		event := AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventLogInitialized,
			Status:    StatusSuccess,
			Metadata:  map[string]string{"logPath": logPath},
		}
		if err := w.appendLocked(event); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write LOG_INITIALIZED event: %w", err)
		}
	}

	return w, nil
}

// GenerateRunID generates a new UUID v4 format Run ID.
func GenerateRunID() (RunID, error) {
	uuid := make([]byte, 16)
	if _, err := rand.Read(uuid); err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x40 // Version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // Variant RFC 4122

	return RunID(fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16])), nil
}

// StartRun writes RUN_START for a new run and makes it the current run.
func (w *Writer) StartRun(appVersion string, runType RunType, source string) (RunID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	runID, err := GenerateRunID()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		RunID:      runID,
		EventType:  EventRunStart,
		Status:     StatusSuccess,
		SourcePath: source,
		Metadata: map[string]string{
			"appVersion": appVersion,
			"runType":    string(runType),
		},
	}
	if err := w.writeEventLocked(event); err != nil {
		return "", fmt.Errorf("failed to write RUN_START event: %w", err)
	}

	w.currentRun = &runID
	return runID, nil
}

// WriteEvent writes a single audit event to the log.
func (w *Writer) WriteEvent(event AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeEventLocked(event)
}

// writeEventLocked appends the event, then rotates the log if it has grown
// past the rotation size.
func (w *Writer) writeEventLocked(event AuditEvent) error {
	if err := w.appendLocked(event); err != nil {
		return err
	}
	if err := w.checkAndRotate(); err != nil {
		return fmt.Errorf("failed to check/perform rotation: %w", err)
	}
	return nil
}

// appendLocked writes one JSON line and syncs it to disk.
func (w *Writer) appendLocked(event AuditEvent) error {
	data, err := event.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync event to disk: %w", err)
	}
	return nil
}

// checkAndRotate closes the active log with a ROTATION event naming its new
// name, renames it, and opens a fresh active log.
func (w *Writer) checkAndRotate() error {
	needsRotation, err := w.rotationManager.NeedsRotation(w.logPath)
	if err != nil || !needsRotation {
		return err
	}

	segment := w.rotationManager.UniqueRotatedFilename(filepath.Dir(w.logPath))
	var runID RunID
	if w.currentRun != nil {
		runID = *w.currentRun
	}
	if err := w.appendLocked(CreateRotationEvent(runID, filepath.Base(w.logPath), segment)); err != nil {
		return fmt.Errorf("failed to write rotation event: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file for rotation: %w", err)
	}
	if _, err := w.rotationManager.RotateWithFilename(w.logPath, segment); err != nil {
		return fmt.Errorf("failed to rotate log: %w", err)
	}

	file, err := os.OpenFile(w.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open new log file after rotation: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// EndRun records the run completion status and summary.
func (w *Writer) EndRun(runID RunID, status RunStatus, summary RunSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	opStatus := StatusSuccess
	if status == RunStatusFailed || status == RunStatusInterrupted {
		opStatus = StatusFailure
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		EventType: EventRunEnd,
		Status:    opStatus,
		Metadata: map[string]string{
			"status":     string(status),
			"totalFiles": strconv.Itoa(summary.TotalFiles),
			"kept":       strconv.Itoa(summary.Kept),
			"groups":     strconv.Itoa(summary.Groups),
			"archives":   strconv.Itoa(summary.Archives),
			"staged":     strconv.Itoa(summary.Staged),
			"skipped":    strconv.Itoa(summary.Skipped),
			"errors":     strconv.Itoa(summary.Errors),
		},
	}
	if err := w.writeEventLocked(event); err != nil {
		return fmt.Errorf("failed to write RUN_END event: %w", err)
	}

	w.currentRun = nil
	return nil
}

// Close flushes any buffered data and closes the audit log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	return nil
}

// CurrentRunID returns the current run ID, or nil if no run is active.
func (w *Writer) CurrentRunID() *RunID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentRun
}

// LogPath returns the path to the active audit log file.
func (w *Writer) LogPath() string {
	return w.logPath
}

func (w *Writer) record(event AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentRun == nil {
		return fmt.Errorf("no active run: call StartRun first")
	}
	event.Timestamp = time.Now().UTC()
	event.RunID = *w.currentRun
	return w.writeEventLocked(event)
}

// RecordStaged records a MEMBER_STAGED event for a file copied or extracted
// into the workspace for group.
func (w *Writer) RecordStaged(group, source string) error {
	return w.record(AuditEvent{
		EventType:  EventMemberStaged,
		Status:     StatusSuccess,
		Group:      group,
		SourcePath: source,
	})
}

// RecordArchive records an ARCHIVE_CREATED event once archive is in place and
// the group's sources are gone.
func (w *Writer) RecordArchive(group, archive string, members int) error {
	return w.record(AuditEvent{
		EventType:       EventArchiveCreated,
		Status:          StatusSuccess,
		Group:           group,
		DestinationPath: archive,
		Metadata:        map[string]string{"members": strconv.Itoa(members)},
	})
}

// RecordSkipped records a GROUP_SKIPPED event for a group without members.
func (w *Writer) RecordSkipped(group string) error {
	return w.record(AuditEvent{
		EventType: EventGroupSkipped,
		Status:    StatusSkipped,
		Group:     group,
	})
}

// RecordError records an ERROR event for the failure that ended the run.
func (w *Writer) RecordError(group, errType, errMsg, operation string) error {
	return w.record(AuditEvent{
		EventType: EventError,
		Status:    StatusFailure,
		Group:     group,
		ErrorDetails: &ErrorDetails{
			ErrorType:    errType,
			ErrorMessage: errMsg,
			Operation:    operation,
		},
	})
}
