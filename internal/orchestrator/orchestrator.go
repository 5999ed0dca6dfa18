// Package orchestrator runs goodmerge end to end: list the filename universe,
// group it, then either print the grouping or repack each group into one
// archive, recording the run in the audit log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"goodmerge/internal/audit"
	"goodmerge/internal/config"
	"goodmerge/internal/output"
	"goodmerge/internal/repack"
)

// Options configures Run.
type Options struct {
	AppVersion string
	RunType    audit.RunType // defaults to audit.RunTypeMerge
	// Only, when non-nil, restricts the run to the groups holding these
	// filenames. Watch passes use it to repack just the groups that changed.
	Only []string
	// Output receives progress, verbose lines and the dry-run document.
	Output *output.Output
	// FS and Runner replace the filesystem and the external tool in tests.
	FS     repack.FS
	Runner repack.Runner
}

// Run executes one goodmerge run for cfg. In dry-run or listing mode the
// grouping is written as JSON and nothing is modified. Otherwise every group
// is repacked in key order and the first failure ends the run; the returned
// Summary then describes the work completed before it.
func Run(ctx context.Context, cfg *config.Configuration, opts Options) (*Summary, error) {
	start := time.Now()
	if opts.Output == nil {
		opts.Output = output.New(output.DefaultConfig())
	}
	if opts.RunType == "" {
		opts.RunType = audit.RunTypeMerge
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	plan, err := NewPlan(cfg)
	if err != nil {
		return nil, err
	}

	var groups repack.Groups = plan.Groups
	keys := plan.Groups.Keys()
	if opts.Only != nil {
		keys = plan.Select(opts.Only)
		groups = selection{groups: plan.Groups, keys: keys}
	}

	summary := &Summary{
		TotalFiles: len(plan.Names),
		Kept:       len(plan.Kept),
		Groups:     len(keys),
		DryRun:     cfg.DryRun || cfg.Listing(),
	}
	defer func() { summary.Duration = time.Since(start) }()

	if summary.DryRun {
		data, err := plan.Groups.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode grouping: %w", err)
		}
		if err := opts.Output.JSON(data); err != nil {
			return nil, fmt.Errorf("write grouping: %w", err)
		}
		return summary, nil
	}

	if len(keys) == 0 {
		slog.Info("nothing to merge")
		return summary, nil
	}

	return summary, apply(ctx, cfg, opts, groups, summary)
}

// apply repacks groups and keeps the audit log in step. An audit write
// failure stops the run before the next file operation.
func apply(ctx context.Context, cfg *config.Configuration, opts Options, groups repack.Groups, summary *Summary) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec, err := newRecorder(cfg, opts)
	if err != nil {
		return err
	}
	defer func() { err = rec.finish(summary, err) }()

	commands := &repack.Commands{
		Decompress: repack.ParseCommand(cfg.CmdDecompress),
		Compress:   repack.ParseCommand(cfg.CmdCompress),
	}
	rp, err := repack.Open(ctx, repack.Options{
		SourceFolder:      cfg.SourceFolder,
		DestinationFolder: cfg.DestinationFolder,
		Workspace:         cfg.WorkingFolder,
		Extension:         cfg.CompressedExtension,
		Commands:          commands,
		ToolTimeout:       cfg.ToolTimeout,
		FS:                opts.FS,
		Runner:            opts.Runner,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out := opts.Output
	out.StartProgress(summary.Groups)
	defer out.EndProgress()

	current := 0
	hooks := repack.Hooks{
		GroupStarted: func(key string, members int) {
			current++
			rec.group = key
			out.UpdateProgress(current, key)
			out.Verbose("%s (%d files)", key, members)
		},
		MemberStaged: func(key, filename string) {
			out.Verbose("  + %s", filename)
			rec.check(rec.staged(key, filename), cancel)
		},
		ArchiveCreated: func(key, archive string, members int) {
			out.Verbose("  = %s", archive)
			rec.check(rec.archive(key, archive, members), cancel)
		},
		GroupSkipped: func(key string) {
			current++
			rec.check(rec.skipped(key), cancel)
		},
	}

	result, err := repack.Merge(ctx, rp, groups, hooks)
	if result != nil {
		summary.Archives = result.Archives
		summary.Staged = result.Staged
		summary.Skipped = result.Skipped
	}
	if rec.err != nil {
		return fmt.Errorf("audit log write failed, run stopped: %w", rec.err)
	}
	return err
}

// recorder forwards run events to the audit log when auditing is enabled.
type recorder struct {
	writer *audit.Writer
	runID  audit.RunID
	group  string // group being repacked
	err    error  // first audit write failure
}

func newRecorder(cfg *config.Configuration, opts Options) (*recorder, error) {
	rec := &recorder{}
	if cfg.Audit == nil || !cfg.Audit.Enabled {
		return rec, nil
	}
	w, err := audit.NewWriter(*cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	runID, err := w.StartRun(opts.AppVersion, opts.RunType, cfg.SourceFolder)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("start audit run: %w", err)
	}
	rec.writer, rec.runID = w, runID
	slog.Debug("audit run started", "run", runID, "log", w.LogPath())
	return rec, nil
}

func (r *recorder) staged(group, source string) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.RecordStaged(group, source)
}

func (r *recorder) archive(group, archive string, members int) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.RecordArchive(group, archive, members)
}

func (r *recorder) skipped(group string) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.RecordSkipped(group)
}

// check keeps the first audit failure and cancels the run.
func (r *recorder) check(err error, cancel context.CancelFunc) {
	if err != nil && r.err == nil {
		r.err = err
		cancel()
	}
}

// finish records the failure, if any, and the end of the run, then closes the
// log. It returns runErr, or the audit failure when the run itself succeeded.
func (r *recorder) finish(summary *Summary, runErr error) error {
	if r.writer == nil {
		return runErr
	}
	defer r.writer.Close()

	status := audit.RunStatusCompleted
	errCount := 0
	if runErr != nil {
		errCount = 1
		status = audit.RunStatusFailed
		if errors.Is(runErr, context.Canceled) && r.err == nil {
			status = audit.RunStatusInterrupted
		}
		errType := string(repack.TypeOf(runErr))
		if errType == "" {
			errType = "RUN"
		}
		if err := r.writer.RecordError(r.group, errType, runErr.Error(), "merge"); err != nil {
			slog.Error("could not record error in audit log", "error", err)
		}
	}
	if err := r.writer.EndRun(r.runID, status, summary.audit(errCount)); err != nil && runErr == nil {
		return fmt.Errorf("end audit run: %w", err)
	}
	return runErr
}
