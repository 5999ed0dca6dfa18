package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func registerLoggingFlags(flags *pflag.FlagSet) {
	flags.String("loglevel", "info", "set the log level (debug, info, warn, error)")
	flags.String("logformat", "text", "set the log format (text, json)")
}

// newLogger builds the logger selected by the logging flags. Logs go to w,
// never stdout, which carries the dry-run document.
func newLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	level, err := loggerLevel(cmd)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	format, err := cmd.Flags().GetString("logformat")
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

func loggerLevel(cmd *cobra.Command) (slog.Level, error) {
	name, err := cmd.Flags().GetString("loglevel")
	if err != nil {
		return slog.LevelInfo, err
	}
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", name)
	}
}
