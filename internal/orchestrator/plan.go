package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"

	"goodmerge/internal/config"
	"goodmerge/internal/grouping"
	"goodmerge/internal/matcher"
	"goodmerge/internal/normalizer"
	"goodmerge/internal/rules"
	"goodmerge/internal/scanner"
)

// ErrNoFiles is returned when the filename universe is empty.
var ErrNoFiles = errors.New("no files to group")

// Plan is the grouping a run would act on, computed without touching any file.
type Plan struct {
	// Names is the filename universe, from the source folder or the listing.
	Names []string
	// Kept are the names with a recognized extension.
	Kept []string
	// Rules is the loaded rule database, or nil when none is configured.
	Rules *rules.RuleSet
	// Groups is the grouping after rules and exclusion.
	Groups *grouping.Group
}

// NewPlan lists the filename universe, filters it by extension, groups it with
// the rule database and drops excluded content.
func NewPlan(cfg *config.Configuration) (*Plan, error) {
	names, err := universe(cfg)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoFiles
	}

	rs, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}

	allowed := matcher.DefaultExtensions()
	var flagPattern string
	if rs != nil {
		allowed.Add(rs.Extensions...)
		flagPattern = rs.FlagPattern
	}
	norm, err := normalizer.New(flagPattern, allowed.Sorted()...)
	if err != nil {
		return nil, fmt.Errorf("rule database flag pattern: %w", err)
	}
	excluder, err := matcher.NewExcluder(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	kept := matcher.FilterExtensions(names, allowed)
	slog.Debug("filtered by extension", "files", len(names), "kept", len(kept), "extensions", allowed.Sorted())

	groups := grouping.Build(kept, rs, norm).Exclude(excluder)
	slog.Debug("grouped", "groups", groups.Len(), "rules", rs.Len())

	return &Plan{Names: names, Kept: kept, Rules: rs, Groups: groups}, nil
}

// Select returns the keys whose groups hold at least one of filenames, sorted.
func (p *Plan) Select(filenames []string) []string {
	wanted := make(map[string]struct{})
	for _, name := range filenames {
		if key, ok := p.Groups.KeyOf(name); ok {
			wanted[key] = struct{}{}
		}
	}
	var keys []string
	for _, key := range p.Groups.Keys() {
		if _, ok := wanted[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func universe(cfg *config.Configuration) ([]string, error) {
	if cfg.Listing() {
		names, err := scanner.ReadListing(cfg.PathFilelist)
		if err != nil {
			return nil, fmt.Errorf("read listing: %w", err)
		}
		return names, nil
	}
	names, err := scanner.ListDirectoryWithOptions(cfg.SourceFolder, scanner.ScanOptions{SymlinkPolicy: cfg.SymlinkPolicy})
	if err != nil {
		return nil, fmt.Errorf("list source folder: %w", err)
	}
	return names, nil
}

func loadRules(cfg *config.Configuration) (*rules.RuleSet, error) {
	path, err := cfg.ResolveRuleDatabase()
	if err != nil || path == "" {
		return nil, err
	}
	rs, err := rules.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("rule database loaded", "path", path, "rules", rs.Len(), "extensions", len(rs.Extensions))
	return rs, nil
}

// selection is the subset of a Group a watch pass repacks.
type selection struct {
	groups *grouping.Group
	keys   []string
}

func (s selection) Keys() []string              { return s.keys }
func (s selection) Members(key string) []string { return s.groups.Members(key) }
