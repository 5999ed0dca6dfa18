// Package matcher decides which filenames take part in a merge: the extension
// allowlist that bounds the filename universe and the exclude pattern applied
// to finished groups.
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CompressedExtensions lists the archive formats that are decompressed into the
// workspace rather than copied verbatim.
var CompressedExtensions = []string{"zip", "7z", "gzip", "tar"}

// ExtensionSet is a set of lowercase extensions without the leading dot.
type ExtensionSet map[string]struct{}

// NewExtensionSet builds a set from extensions written with or without a
// leading dot, in any case. Empty entries are ignored.
func NewExtensionSet(exts ...string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	set.Add(exts...)
	return set
}

// Add inserts extensions into the set.
func (s ExtensionSet) Add(exts ...string) {
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		s[ext] = struct{}{}
	}
}

// Union returns a new set holding the members of s and other.
func (s ExtensionSet) Union(other ExtensionSet) ExtensionSet {
	out := make(ExtensionSet, len(s)+len(other))
	for ext := range s {
		out[ext] = struct{}{}
	}
	for ext := range other {
		out[ext] = struct{}{}
	}
	return out
}

// Sorted returns the extensions in lexicographic order.
func (s ExtensionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Matches reports whether name ends with ".ext" for some ext in the set.
// The comparison is case-insensitive.
func (s ExtensionSet) Matches(name string) bool {
	lower := strings.ToLower(name)
	for ext := range s {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}

// compressed is the built-in set behind IsCompressed.
var compressed = NewExtensionSet(CompressedExtensions...)

// DefaultExtensions returns a fresh copy of the built-in compressed-format set.
func DefaultExtensions() ExtensionSet {
	return NewExtensionSet(CompressedExtensions...)
}

// IsCompressed reports whether name carries one of CompressedExtensions.
func IsCompressed(name string) bool {
	return compressed.Matches(name)
}

// FilterExtensions returns the names accepted by allowed, preserving order.
func FilterExtensions(names []string, allowed ExtensionSet) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if allowed.Matches(name) {
			out = append(out, name)
		}
	}
	return out
}

// Excluder matches group keys and filenames that must be left out of a merge.
type Excluder struct {
	pattern *regexp.Regexp
}

// NewExcluder compiles pattern for case-insensitive search. An empty pattern
// returns a nil Excluder, which matches nothing.
func NewExcluder(pattern string) (*Excluder, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
	}
	return &Excluder{pattern: re}, nil
}

// Match reports whether s contains a match of the exclude pattern.
func (e *Excluder) Match(s string) bool {
	if e == nil {
		return false
	}
	return e.pattern.MatchString(s)
}

// String returns the compiled pattern, or "" for a nil Excluder.
func (e *Excluder) String() string {
	if e == nil {
		return ""
	}
	return e.pattern.String()
}
