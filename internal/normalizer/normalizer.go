// Package normalizer reduces release filenames to the canonical grouping key
// shared by every variant of the same title.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"goodmerge/internal/matcher"
)

// DefaultFlagPattern matches any parenthesis- or bracket-delimited run, which is
// how region, revision and hack tags are written ("(U)", "[!]", "[T-Hack]").
const DefaultFlagPattern = `\([^)]*\)|\[[^\]]*\]`

// maxPasses bounds the fixpoint loop in Normalize. A pass only ever removes
// characters or re-cases them, so real names settle in one or two passes.
const maxPasses = 8

var whitespacePattern = regexp.MustCompile(`\s+`)

// Normalizer derives grouping keys from filenames.
// A Normalizer is immutable and safe to share.
type Normalizer struct {
	flags      *regexp.Regexp
	extensions matcher.ExtensionSet
}

// New creates a Normalizer. An empty flagPattern selects DefaultFlagPattern.
// Only the compressed formats and the given extensions are stripped from
// names; any other dotted suffix is part of the title ("Mr.Do").
func New(flagPattern string, extensions ...string) (*Normalizer, error) {
	if flagPattern == "" {
		flagPattern = DefaultFlagPattern
	}
	flags, err := regexp.Compile(flagPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid flag pattern %q: %w", flagPattern, err)
	}
	exts := matcher.DefaultExtensions()
	exts.Add(extensions...)
	return &Normalizer{flags: flags, extensions: exts}, nil
}

// Default returns a Normalizer using DefaultFlagPattern that strips only the
// compressed formats.
func Default() *Normalizer {
	n, err := New("")
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize returns the grouping key for name.
//
// Flags are removed, trailing extensions stripped, whitespace collapsed and
// the result title-cased, so "rom name [U] [!].zip" and "Rom Name (E).zip"
// both become "Rom Name". The result is idempotent: Normalize(Normalize(x))
// equals Normalize(x). An empty result means the name carries no key and
// must be skipped by callers.
func (n *Normalizer) Normalize(name string) string {
	key := name
	for i := 0; i < maxPasses; i++ {
		next := n.pass(key)
		if next == key {
			break
		}
		key = next
	}
	return key
}

func (n *Normalizer) pass(name string) string {
	s := n.flags.ReplaceAllString(name, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = n.stripExtensions(s)
	if s == "" {
		return ""
	}
	// A Caser carries state, so each call gets its own.
	return cases.Title(language.Und).String(strings.ToLower(s))
}

// stripExtensions removes trailing known extensions until none is left, so
// "Title.tar.gzip" loses both while "Doom v1.9a" keeps its version.
func (n *Normalizer) stripExtensions(s string) string {
	for {
		dot := strings.LastIndexByte(s, '.')
		if dot < 0 {
			return s
		}
		if _, ok := n.extensions[strings.ToLower(s[dot+1:])]; !ok {
			return s
		}
		s = strings.TrimSpace(s[:dot])
	}
}
