// Package rules reads the rule database that tells the grouping engine which
// titles belong together: zoned blocks, parent blocks, extra extensions and an
// optional flag-pattern override.
package rules

import "regexp"

// Kind distinguishes the two rule shapes in a rule database.
type Kind string

const (
	// KindZoned is a <zoned> block: its first child names the parent, the rest
	// are clones, biases and group patterns.
	KindZoned Kind = "zoned"
	// KindParent is a <parent name="..."> block holding group patterns only.
	KindParent Kind = "parent"
)

// Rule merges explicitly named or pattern-matched groups into one parent key.
type Rule struct {
	Kind Kind
	// Parent is the raw, not yet normalized, parent name.
	Parent string
	// Clones are raw names folded into the parent (bias and clone entries).
	Clones []string
	// KeyPatterns match normalized group keys from their start.
	KeyPatterns []*regexp.Regexp
	// FilenamePatterns match raw filenames anywhere.
	FilenamePatterns []*regexp.Regexp
}

// RuleSet is the parsed rule database. It is not modified after parsing.
type RuleSet struct {
	Zoned   []Rule
	Parents []Rule
	// Extensions are additional recognized file extensions, without the dot.
	Extensions []string
	// FlagPattern overrides the normalizer's flag pattern when non-empty.
	FlagPattern string
}

// Ordered returns the rules in application order: every zoned rule in
// document order, then every parent rule in document order. A nil RuleSet has
// no rules.
func (rs *RuleSet) Ordered() []Rule {
	if rs == nil {
		return nil
	}
	out := make([]Rule, 0, len(rs.Zoned)+len(rs.Parents))
	out = append(out, rs.Zoned...)
	out = append(out, rs.Parents...)
	return out
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Zoned) + len(rs.Parents)
}
