package watcher

import (
	"path/filepath"
	"strings"
)

// DefaultIgnorePatterns returns the default patterns for files a watch pass
// must not react to: partial downloads and goodmerge's own staging folders.
func DefaultIgnorePatterns() []string {
	return []string{
		"*.tmp",
		"*.part",
		"*.download",
		"*.crdownload", // Chrome partial downloads
		"*.partial",    // Generic partial file
		".~*",          // Hidden temp files (e.g., .~lock)
		".goodmerge-*", // Archive staging folders
	}
}

// FileFilter handles filtering of files based on ignore patterns.
type FileFilter struct {
	patterns []string
}

// NewFileFilter creates a new FileFilter with the given patterns.
// If patterns is nil or empty, default patterns are used.
func NewFileFilter(patterns []string) *FileFilter {
	if len(patterns) == 0 {
		patterns = DefaultIgnorePatterns()
	}
	return &FileFilter{
		patterns: patterns,
	}
}

// ShouldIgnore checks if a file path matches any of the ignore patterns.
// It matches against the filename (base name) only, with glob syntax.
// A pattern like ".tmp" without wildcards matches as a case-insensitive suffix.
func (f *FileFilter) ShouldIgnore(path string) bool {
	filename := filepath.Base(path)

	for _, pattern := range f.patterns {
		if matched, err := filepath.Match(pattern, filename); err == nil && matched {
			return true
		}
		if strings.HasPrefix(pattern, ".") && !strings.ContainsAny(pattern, "*?[") {
			if strings.HasSuffix(strings.ToLower(filename), strings.ToLower(pattern)) {
				return true
			}
		}
	}
	return false
}

// GetPatterns returns the current ignore patterns.
func (f *FileFilter) GetPatterns() []string {
	result := make([]string, len(f.patterns))
	copy(result, f.patterns)
	return result
}
