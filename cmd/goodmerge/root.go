package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"goodmerge/internal/config"
	"goodmerge/internal/output"
)

// New returns the goodmerge root command. Run without a subcommand it merges,
// exactly like "goodmerge merge".
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goodmerge",
		Short: "Repack ROM variants into one archive per title",
		Long: `goodmerge groups release files that are variants of the same title
(regions, revisions, dumps) and repacks every group into a single archive.
A GoodMerge rule database (xmdb) can fold differently named clones into
their parent title.`,
		Version:           version,
		Args:              cobra.NoArgs,
		PersistentPreRunE: setupLogging,
		RunE:              runMerge,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigFilename,
		"configuration file (YAML or JSON); flags override its values")
	registerLoggingFlags(cmd.PersistentFlags())
	registerMergeFlags(cmd.Flags())

	cmd.AddCommand(newMergeCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM, which cancels the running external tool.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := New()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted; sources of the unfinished group were left in place")
		}
	}
	return err
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func registerMergeFlags(flags *pflag.FlagSet) {
	flags.String("source_folder", "", "folder holding the release files to merge")
	flags.String("destination_folder", "", "folder receiving the archives (default: source_folder)")
	flags.String("path_xmdb", "", "rule database file, or the folder holding it")
	flags.String("xmdb_filename_template", "", `rule database filename inside path_xmdb, "{}" is replaced by xmdb_type`)
	flags.String("xmdb_type", "", "romset shorthand name, e.g. snes, gba, sms")
	flags.String("cmd_decompress", "", "decompress command template")
	flags.String("cmd_compress", "", "compress command template")
	flags.String("exclude", "", "regular expression; matching groups and files are left alone")
	flags.String("path_filelist", "", "read filenames from this file instead of source_folder (implies dry run)")
	flags.BoolP("dryrun", "n", false, "print the grouping as JSON instead of compressing")
	flags.String("compressed_extension", "", "extension of the produced archives (default: 7z)")
	flags.String("working_folder", "", "existing empty folder to stage files in (default: a temporary folder)")
	flags.String("symlink_policy", "", "symlinks in source_folder: follow, skip or error")
	flags.Duration("tool_timeout", 0, `limit for each compressor run, e.g. "10m" (default: none)`)
	flags.Bool("audit", false, "record the run in the audit log")
	flags.BoolP("verbose", "v", false, "print every staged file")
}

// loadConfig reads the configuration file and overlays every flag that was
// set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	flags := cmd.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	for name, dst := range map[string]*string{
		"source_folder":          &cfg.SourceFolder,
		"destination_folder":     &cfg.DestinationFolder,
		"path_xmdb":              &cfg.PathXMDB,
		"xmdb_filename_template": &cfg.XMDBFilenameTemplate,
		"xmdb_type":              &cfg.XMDBType,
		"cmd_decompress":         &cfg.CmdDecompress,
		"cmd_compress":           &cfg.CmdCompress,
		"exclude":                &cfg.Exclude,
		"path_filelist":          &cfg.PathFilelist,
		"compressed_extension":   &cfg.CompressedExtension,
		"working_folder":         &cfg.WorkingFolder,
		"symlink_policy":         &cfg.SymlinkPolicy,
	} {
		if flags.Changed(name) {
			if *dst, err = flags.GetString(name); err != nil {
				return nil, err
			}
		}
	}
	if flags.Changed("dryrun") {
		if cfg.DryRun, err = flags.GetBool("dryrun"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tool_timeout") {
		if cfg.ToolTimeout, err = flags.GetDuration("tool_timeout"); err != nil {
			return nil, err
		}
	}
	cfg.ApplyDefaults()
	if flags.Changed("audit") {
		if cfg.Audit.Enabled, err = flags.GetBool("audit"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// validate logs every finding and fails when any is an error.
func validate(cfg *config.Configuration) error {
	result := config.ValidateConfig(cfg)
	for _, w := range result.Warnings {
		slog.Warn(w.Message, "field", w.Field)
	}
	if result.Valid {
		return nil
	}
	for _, e := range result.Errors {
		slog.Error(e.Message, "field", e.Field)
	}
	return fmt.Errorf("invalid configuration: %d error(s)", len(result.Errors))
}

func newOutput(cmd *cobra.Command) *output.Output {
	cfg := output.DefaultConfig()
	cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	cfg.Writer = cmd.OutOrStdout()
	cfg.ErrWriter = cmd.ErrOrStderr()
	return output.New(cfg)
}
