// Package grouping partitions a filename universe into groups, one per logical
// title, by normalizing names and then applying the rule database.
package grouping

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"goodmerge/internal/normalizer"
	"goodmerge/internal/rules"
)

// Group maps normalized keys to the set of original filenames that will be
// packed together. Every filename belongs to exactly one key; merges move whole
// filename sets between keys and never copy them.
//
// A Group is not safe for concurrent mutation.
type Group struct {
	members map[string]map[string]struct{}
	owner   map[string]string // filename -> key
}

// Matcher reports whether a key or filename is matched, as matcher.Excluder does.
type Matcher interface {
	Match(s string) bool
}

// Entry is one key of a Group with its members in sorted order.
type Entry struct {
	Key     string
	Members []string
}

// New returns an empty Group.
func New() *Group {
	return &Group{
		members: make(map[string]map[string]struct{}),
		owner:   make(map[string]string),
	}
}

// Build seeds a Group from names and then applies every rule of rs in order:
// zoned rules in document order, then parent rules in document order. Each rule
// sees the Group as left by the previous one, so when two rules match an
// overlapping key the earlier rule wins the first move and the later rule may
// take the result over. A nil rs applies no rules.
func Build(names []string, rs *rules.RuleSet, n *normalizer.Normalizer) *Group {
	g := New()
	for _, name := range names {
		g.Add(n, name)
	}
	for _, rule := range rs.Ordered() {
		Apply(g, rule, n)
	}
	return g
}

// Add files name under its normalized key. Empty names are skipped. A name made
// only of flags and an extension has no key of its own and is filed under its
// trimmed text instead, so it is never dropped.
func (g *Group) Add(n *normalizer.Normalizer, name string) {
	if name == "" {
		return
	}
	if _, seen := g.owner[name]; seen {
		return
	}
	key := n.Normalize(name)
	if key == "" {
		key = strings.TrimSpace(name)
		slog.Debug("filename has no grouping key, using it verbatim", "file", name)
	}
	g.ensure(key)
	g.members[key][name] = struct{}{}
	g.owner[name] = key
}

// Apply folds one rule into g and returns g.
//
// The rule's parent name is normalized into the parent key, which is created
// empty when absent (and kept even if nothing is merged into it). Explicit
// clones and every key matched from its start by a key pattern are normalized
// and, except for the parent key itself, moved wholesale into the parent key.
// Finally every filename matched anywhere by a filename pattern is relocated
// into the parent key.
func Apply(g *Group, rule rules.Rule, n *normalizer.Normalizer) *Group {
	parentKey := n.Normalize(rule.Parent)
	if parentKey == "" {
		slog.Debug("skipping rule whose parent normalizes to nothing", "parent", rule.Parent)
		return g
	}
	g.ensure(parentKey)

	candidates := make(map[string]struct{}, len(rule.Clones))
	for _, clone := range rule.Clones {
		candidates[n.Normalize(clone)] = struct{}{}
	}
	if len(rule.KeyPatterns) > 0 {
		for _, key := range g.Keys() {
			for _, re := range rule.KeyPatterns {
				if re.MatchString(key) {
					candidates[n.Normalize(key)] = struct{}{}
					break
				}
			}
		}
	}
	delete(candidates, parentKey)

	for _, key := range sortedSet(candidates) {
		if _, ok := g.members[key]; !ok {
			continue
		}
		slog.Debug("merging group", "from", key, "into", parentKey, "kind", rule.Kind)
		g.merge(key, parentKey)
	}

	if len(rule.FilenamePatterns) > 0 {
		for _, name := range g.files() {
			if g.owner[name] == parentKey {
				continue
			}
			for _, re := range rule.FilenamePatterns {
				if re.MatchString(name) {
					slog.Debug("relocating file", "file", name, "from", g.owner[name], "into", parentKey)
					g.move(name, parentKey)
					break
				}
			}
		}
	}

	return g
}

// Len returns the number of keys, including empty ones.
func (g *Group) Len() int {
	return len(g.members)
}

// FileCount returns the number of filenames across all keys.
func (g *Group) FileCount() int {
	return len(g.owner)
}

// Has reports whether key is present.
func (g *Group) Has(key string) bool {
	_, ok := g.members[key]
	return ok
}

// KeyOf returns the key holding filename.
func (g *Group) KeyOf(filename string) (string, bool) {
	key, ok := g.owner[filename]
	return key, ok
}

// Keys returns every key in lexicographic order.
func (g *Group) Keys() []string {
	keys := make([]string, 0, len(g.members))
	for key := range g.members {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Members returns the filenames under key in lexicographic order. An unknown
// key yields an empty, non-nil slice.
func (g *Group) Members(key string) []string {
	return sortedSet(g.members[key])
}

// Entries returns every key with its members, both sorted.
func (g *Group) Entries() []Entry {
	keys := g.Keys()
	entries := make([]Entry, len(keys))
	for i, key := range keys {
		entries[i] = Entry{Key: key, Members: g.Members(key)}
	}
	return entries
}

// Exclude returns a copy of g without excluded content. A key that matches ex,
// or whose members all match ex, is dropped entirely; otherwise only the
// matching members are dropped and the rest stay under the same key. Keys that
// own no files are kept unless the key itself matches. A nil ex returns an
// unfiltered copy.
func (g *Group) Exclude(ex Matcher) *Group {
	out := New()
	for key, set := range g.members {
		if ex != nil && ex.Match(key) {
			continue
		}

		kept := make(map[string]struct{}, len(set))
		for name := range set {
			if ex != nil && ex.Match(name) {
				continue
			}
			kept[name] = struct{}{}
		}
		if len(set) > 0 && len(kept) == 0 {
			continue
		}

		out.members[key] = kept
		for name := range kept {
			out.owner[name] = key
		}
	}
	return out
}

// MarshalJSON encodes the Group as one object mapping each key to the array of
// its members, with keys and arrays in lexicographic order. Filenames are not
// HTML-escaped.
func (g *Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, entry := range g.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(entry.Key); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(entry.Members); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (g *Group) ensure(key string) {
	if _, ok := g.members[key]; !ok {
		g.members[key] = make(map[string]struct{})
	}
}

// merge moves every member of from into to and deletes from.
func (g *Group) merge(from, to string) {
	for name := range g.members[from] {
		g.members[to][name] = struct{}{}
		g.owner[name] = to
	}
	delete(g.members, from)
}

// move relocates one filename into key. The key it leaves stays, even empty.
func (g *Group) move(name, key string) {
	if prev, ok := g.owner[name]; ok {
		delete(g.members[prev], name)
	}
	g.ensure(key)
	g.members[key][name] = struct{}{}
	g.owner[name] = key
}

func (g *Group) files() []string {
	names := make([]string, 0, len(g.owner))
	for name := range g.owner {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
