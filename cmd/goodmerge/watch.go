package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"goodmerge/internal/audit"
	"goodmerge/internal/orchestrator"
	"goodmerge/internal/watcher"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Merge once, then keep merging files as they arrive",
		Long: `Run a full merge of source_folder, then watch it. Files that are created
or rewritten are collected until the folder has been quiet for
watch.debounce_seconds and each file's size has held for
watch.stable_threshold_ms. A pass then repacks only the groups those files
belong to, folding them into any archive already written for the title.
Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	registerMergeFlags(cmd.Flags())
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Listing() || cfg.DryRun {
		return errors.New("watch repacks files as they arrive; it cannot run with path_filelist or dryrun")
	}
	if err := validate(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	out := newOutput(cmd)
	opts := orchestrator.Options{
		AppVersion: version,
		RunType:    audit.RunTypeWatch,
		Output:     out,
	}

	summary, err := orchestrator.Run(ctx, cfg, opts)
	switch {
	case errors.Is(err, orchestrator.ErrNoFiles):
		out.Verbose("source folder is empty")
	case err != nil:
		return err
	default:
		report(out, summary)
	}

	pass := func(ctx context.Context, changed []string) ([]string, error) {
		passOpts := opts
		passOpts.Only = changed
		summary, err := orchestrator.Run(ctx, cfg, passOpts)
		if errors.Is(err, orchestrator.ErrNoFiles) {
			return nil, nil
		}
		if summary == nil {
			return nil, err
		}
		if err == nil {
			report(out, summary)
		}
		return summary.Archives, err
	}

	w := watcher.New(&watcher.WatchConfig{
		DebounceSeconds:   cfg.Watch.DebounceSeconds,
		StableThresholdMs: cfg.Watch.StableThresholdMs,
		IgnorePatterns:    append(watcher.DefaultIgnorePatterns(), cfg.Watch.IgnorePatterns...),
	}, pass)
	if err := w.Start(cfg.SourceFolder); err != nil {
		return err
	}
	out.Info("Watching %s (Ctrl-C to stop)", cfg.SourceFolder)

	<-ctx.Done()
	ws := w.Stop()
	out.Info("Watched for %s: %d passes, %d archives written, %d passes failed, %d events ignored",
		ws.Duration.Round(time.Second), ws.Passes, ws.Archives, ws.Failures, ws.Ignored)
	return nil
}
