package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"goodmerge/internal/orchestrator"
	"goodmerge/internal/output"
)

func newMergeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Group the release files and repack every group into one archive",
		Long: `Group the files of source_folder by title and repack each group into
<destination_folder>/<title>.<compressed_extension>. With --dryrun, or when
path_filelist is set, the grouping is printed as JSON and nothing is touched.`,
		Example: `  goodmerge merge --source_folder roms/snes --path_xmdb xmdb --xmdb_filename_template "{}.xmdb" --xmdb_type Snes
  goodmerge merge -c snes.yaml --dryrun`,
		Args: cobra.NoArgs,
		RunE: runMerge,
	}
	registerMergeFlags(cmd.Flags())
	return cmd
}

func runMerge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return err
	}

	out := newOutput(cmd)
	summary, err := orchestrator.Run(cmd.Context(), cfg, orchestrator.Options{
		AppVersion: version,
		Output:     out,
	})
	if summary != nil {
		report(out, summary)
	}
	return err
}

// report prints the run summary. Dry runs keep stdout for the JSON document,
// so their summary is logged instead.
func report(out *output.Output, summary *orchestrator.Summary) {
	if summary.DryRun {
		slog.Info(summary.String())
		return
	}
	out.Info("%s", summary.String())
}
