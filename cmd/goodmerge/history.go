package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goodmerge/internal/audit"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past runs recorded in the audit log",
		Long: `Without arguments, list every run in the audit log with its outcome.
With a run ID, print that run's events. With --stats, print totals across
runs instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	cmd.Flags().String("audit_dir", "", "audit log folder (default: audit.log_directory from the configuration)")
	cmd.Flags().Bool("stats", false, "print totals across runs")
	cmd.Flags().String("since", "", "with --stats, only count runs started on or after this date (YYYY-MM-DD)")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	dir, _ := flags.GetString("audit_dir")
	if dir == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir = cfg.Audit.LogDirectory
	}
	w := cmd.OutOrStdout()

	if stats, _ := flags.GetBool("stats"); stats {
		var since *time.Time
		if value, _ := flags.GetString("since"); value != "" {
			t, err := time.ParseInLocation(time.DateOnly, value, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --since date %q: %w", value, err)
			}
			since = &t
		}
		s, err := audit.AggregateStats(dir, since)
		if err != nil {
			return err
		}
		printStats(w, s)
		return nil
	}

	reader := audit.NewReader(dir)
	if len(args) == 1 {
		events, err := reader.GetRun(audit.RunID(args[0]))
		if err != nil {
			return err
		}
		return printEvents(w, events)
	}

	runs, err := reader.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded in %s\n", dir)
		return nil
	}
	return printRuns(w, runs)
}

func printRuns(w io.Writer, runs []audit.RunInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tTYPE\tSTATUS\tARCHIVES\tFILES\tERRORS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			run.RunID, run.StartTime.Local().Format(time.DateTime), run.RunType, run.Status,
			run.Summary.Archives, run.Summary.Staged, run.Summary.Errors)
	}
	return tw.Flush()
}

func printEvents(w io.Writer, events []audit.AuditEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range events {
		detail := e.SourcePath
		if e.DestinationPath != "" {
			detail = e.DestinationPath
		}
		if e.ErrorDetails != nil {
			detail = e.ErrorDetails.ErrorType + ": " + e.ErrorDetails.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.EventType, e.Group, detail)
	}
	return tw.Flush()
}

func printStats(w io.Writer, s *audit.Stats) {
	fmt.Fprintf(w, "Runs:     %d (%d failed)\n", s.TotalRuns, s.FailedRuns)
	fmt.Fprintf(w, "Archives: %d\n", s.TotalArchives)
	fmt.Fprintf(w, "Files:    %d\n", s.TotalStaged)
	if s.TotalRuns > 0 {
		fmt.Fprintf(w, "Period:   %s to %s\n",
			s.FirstRun.Local().Format(time.DateTime), s.LastRun.Local().Format(time.DateTime))
	}
}
