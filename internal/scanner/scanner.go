// Package scanner produces the filename universe goodmerge groups: either the
// files of a source folder or the lines of a listing file.
package scanner

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanErrorType represents the type of scanning error.
type ScanErrorType string

const (
	// DirectoryNotFound indicates the directory does not exist.
	DirectoryNotFound ScanErrorType = "DIRECTORY_NOT_FOUND"
	// PermissionDenied indicates insufficient permissions to read the directory.
	PermissionDenied ScanErrorType = "PERMISSION_DENIED"
	// SymlinkError indicates a symlink was encountered with "error" policy.
	SymlinkError ScanErrorType = "SYMLINK_ERROR"
	// ListingNotFound indicates the listing file does not exist.
	ListingNotFound ScanErrorType = "LISTING_NOT_FOUND"
)

// Symlink policy constants
const (
	SymlinkPolicyFollow = "follow"
	SymlinkPolicySkip   = "skip"
	SymlinkPolicyError  = "error"
)

// ScanError represents an error that occurred during scanning.
type ScanError struct {
	Type ScanErrorType
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return string(e.Type) + ": " + e.Path
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// ScanOptions configures scanning behavior.
type ScanOptions struct {
	SymlinkPolicy string // "follow", "skip", or "error"
}

// DefaultScanOptions returns the default scan options. Symlinks to regular
// files are followed, the way a plain directory listing sees them.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{SymlinkPolicy: SymlinkPolicyFollow}
}

// ListDirectory returns the names of the regular files directly inside
// directory, sorted. Subdirectories are not entered.
func ListDirectory(directory string) ([]string, error) {
	return ListDirectoryWithOptions(directory, DefaultScanOptions())
}

// ListDirectoryWithOptions lists directory with a configurable symlink policy.
func ListDirectoryWithOptions(directory string, opts ScanOptions) ([]string, error) {
	info, err := os.Stat(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ScanError{Type: DirectoryNotFound, Path: directory, Err: err}
		}
		if os.IsPermission(err) {
			return nil, &ScanError{Type: PermissionDenied, Path: directory, Err: err}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, &ScanError{
			Type: DirectoryNotFound,
			Path: directory,
			Err:  errors.New("path is not a directory"),
		}
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &ScanError{Type: PermissionDenied, Path: directory, Err: err}
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		fullPath := filepath.Join(directory, entry.Name())
		info, err := os.Lstat(fullPath)
		if err != nil {
			continue // vanished between ReadDir and Lstat
		}

		if info.Mode()&os.ModeSymlink != 0 {
			switch opts.SymlinkPolicy {
			case SymlinkPolicyError:
				return nil, &ScanError{
					Type: SymlinkError,
					Path: fullPath,
					Err:  errors.New("symlink encountered with error policy"),
				}
			case SymlinkPolicySkip:
				continue
			default:
				info, err = os.Stat(fullPath)
				if err != nil {
					continue // broken symlink
				}
			}
		}

		if !info.Mode().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	return names, nil
}

// ReadListing reads a newline-delimited list of filenames. Trailing carriage
// returns are dropped and blank lines are ignored; order is preserved.
func ReadListing(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ScanError{Type: ListingNotFound, Path: path, Err: err}
		}
		if os.IsPermission(err) {
			return nil, &ScanError{Type: PermissionDenied, Path: path, Err: err}
		}
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
