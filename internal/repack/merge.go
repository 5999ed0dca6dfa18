package repack

import (
	"context"
	"log/slog"
)

// Groups is the read side of a grouping: sorted keys and sorted members.
type Groups interface {
	Keys() []string
	Members(key string) []string
}

// Hooks observe Merge. Any of them may be nil.
type Hooks struct {
	// GroupStarted is called before the first member of a group is staged.
	GroupStarted func(key string, members int)
	// MemberStaged is called after each successful Prepare.
	MemberStaged func(key, filename string)
	// ArchiveCreated is called after each successful Compress.
	ArchiveCreated func(key, archive string, members int)
	// GroupSkipped is called for groups with no members.
	GroupSkipped func(key string)
}

// MergeResult counts what Merge did.
type MergeResult struct {
	Archives []string
	Staged   int
	Skipped  int
}

// Merge repacks every group of g through rp: keys in sorted order, each
// member staged in sorted order, then one Compress per key. Groups without
// members are skipped. The first error aborts and is returned together with
// the work completed so far.
func Merge(ctx context.Context, rp *Repackager, g Groups, hooks Hooks) (*MergeResult, error) {
	result := &MergeResult{}
	for _, key := range g.Keys() {
		members := g.Members(key)
		if len(members) == 0 {
			rp.log.Info("skipping empty group", "group", key)
			result.Skipped++
			if hooks.GroupSkipped != nil {
				hooks.GroupSkipped(key)
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if hooks.GroupStarted != nil {
			hooks.GroupStarted(key, len(members))
		}
		for _, member := range members {
			if err := rp.Prepare(ctx, member); err != nil {
				return result, err
			}
			result.Staged++
			if hooks.MemberStaged != nil {
				hooks.MemberStaged(key, member)
			}
		}

		archive, err := rp.Compress(ctx, key)
		if err != nil {
			return result, err
		}
		result.Archives = append(result.Archives, archive)
		rp.log.Info("archive created", slog.String("group", key), slog.String("archive", archive), slog.Int("members", len(members)))
		if hooks.ArchiveCreated != nil {
			hooks.ArchiveCreated(key, archive, len(members))
		}
	}
	return result, nil
}
