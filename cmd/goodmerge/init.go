package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"goodmerge/internal/config"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default filled in",
		Long: `Write the file named by --config with the default tool commands,
archive extension, audit and watch settings. Flags set on the command line
are written too, so "goodmerge init --source_folder roms" gives a file that
is ready to use. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	registerMergeFlags(cmd.Flags())
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
