package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// ActiveLogName is the file events are appended to.
	ActiveLogName = "goodmerge-audit.jsonl"

	segmentPrefix = "goodmerge-audit-"
	segmentSuffix = ".jsonl"
)

// RotationManager handles size-based log rotation.
type RotationManager struct {
	config Config
}

// NewRotationManager creates a new RotationManager with the given configuration.
func NewRotationManager(config Config) *RotationManager {
	return &RotationManager{config: config}
}

// NeedsRotation reports whether the log at logPath has reached the rotation size.
func (rm *RotationManager) NeedsRotation(logPath string) (bool, error) {
	if rm.config.RotationSize <= 0 {
		return false, nil
	}
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat log file: %w", err)
	}
	return info.Size() >= rm.config.RotationSize, nil
}

// GenerateRotatedFilename creates a filename for a rotated log segment.
// Format: goodmerge-audit-YYYYMMDD-HHMMSS-NNNNNNNNN.jsonl
func (rm *RotationManager) GenerateRotatedFilename() string {
	return rotatedFilename(time.Now())
}

// UniqueRotatedFilename returns a segment name not yet present in logDir.
// Rotations within the same clock tick get successive nanosecond stamps so
// names still sort in rotation order.
func (rm *RotationManager) UniqueRotatedFilename(logDir string) string {
	t := time.Now()
	for {
		name := rotatedFilename(t)
		if _, err := os.Stat(filepath.Join(logDir, name)); os.IsNotExist(err) {
			return name
		}
		t = t.Add(time.Nanosecond)
	}
}

func rotatedFilename(t time.Time) string {
	return fmt.Sprintf("%s%s-%09d%s", segmentPrefix, t.Format("20060102-150405"), t.Nanosecond(), segmentSuffix)
}

// RotateWithFilename renames the active log to rotatedFilename in the same directory.
func (rm *RotationManager) RotateWithFilename(logPath, rotatedFilename string) (string, error) {
	rotatedPath := filepath.Join(filepath.Dir(logPath), rotatedFilename)
	if err := os.Rename(logPath, rotatedPath); err != nil {
		return "", fmt.Errorf("failed to rename log file during rotation: %w", err)
	}
	return rotatedPath, nil
}

// DiscoverSegments finds all rotated log segments in the directory, oldest first.
func DiscoverSegments(logDir string) ([]string, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			segments = append(segments, name)
		}
	}

	// The timestamp in the name sorts chronologically.
	sort.Strings(segments)
	return segments, nil
}

// GetAllLogFiles returns the rotated segments followed by the active log,
// as full paths in chronological order. A missing directory yields no files.
func GetAllLogFiles(logDir string) ([]string, error) {
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		return nil, nil
	}
	segments, err := DiscoverSegments(logDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, seg := range segments {
		files = append(files, filepath.Join(logDir, seg))
	}

	activeLog := filepath.Join(logDir, ActiveLogName)
	if _, err := os.Stat(activeLog); err == nil {
		files = append(files, activeLog)
	}
	return files, nil
}

// CreateRotationEvent creates a ROTATION event to be written before switching files.
func CreateRotationEvent(runID RunID, oldFile, newFile string) AuditEvent {
	return AuditEvent{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		EventType: EventRotation,
		Status:    StatusSuccess,
		Metadata: map[string]string{
			"previousFile": oldFile,
			"newFile":      newFile,
		},
	}
}
