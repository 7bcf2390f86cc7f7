package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `List recorded runs, newest first.

Subcommands:
  show   Print the outcomes of one run
  rm     Delete a run`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Print the outcomes of a run",
	Long: `Print the outcomes of a run. RUN_ID may be any unique prefix of the
run ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

var historyRmCmd = &cobra.Command{
	Use:   "rm RUN_ID",
	Short: "Delete a run and its outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRm,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRmCmd)

	historyCmd.PersistentFlags().String("db", "", "history database path")
	historyCmd.Flags().Int("limit", 20, "maximum number of runs, 0 for all")
	historyCmd.Flags().Bool("here", false, "only runs of the current work directory")
	historyCmd.Flags().StringSlice("status", nil, "filter by status (running, passed, failed, aborted)")
	historyShowCmd.Flags().Bool("diff", false, "include the recorded comparison output")
}

func openHistory(cmd *cobra.Command) (*state.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		global, err := config.LoadGlobalConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load global config: %w", err)
		}
		if global.History.Path != "" {
			if path, err = config.ExpandPath(global.History.Path); err != nil {
				return nil, err
			}
		}
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return db, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	here, _ := cmd.Flags().GetBool("here")
	statuses, _ := cmd.Flags().GetStringSlice("status")

	opts := state.ListOptions{Limit: limit}
	for _, s := range statuses {
		if !state.IsValidStatus(state.Status(s)) {
			return fmt.Errorf("%w: %s", state.ErrInvalidStatus, s)
		}
		opts.Statuses = append(opts.Statuses, state.Status(s))
	}
	if here {
		cfg, err := loadConfig(config.FlagOverrides{})
		if err != nil {
			return err
		}
		opts.WorkDir = cfg.WorkDir
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}
	printRuns(out, runs, time.Now())

	if limit > 0 && len(runs) == limit {
		total, err := db.CountRuns(opts)
		if err != nil {
			return err
		}
		if total > limit {
			fmt.Fprintf(out, "\nShowing %d of %d runs (use --limit 0 for all)\n", limit, total)
		}
	}
	return nil
}

func printRuns(out io.Writer, runs []*state.Run, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tRESULT\tMATRIX\tREVISION\tSTARTED")
	for _, run := range runs {
		revision := run.Revision
		if revision == "" {
			revision = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			state.ShortID(run.ID), run.Status, run.Passed, run.Total, run.Matrix, revision,
			formatTimeAgo(now, run.StartedAt))
	}
	w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	withDiff, _ := cmd.Flags().GetBool("diff")

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRunByPrefix(args[0])
	if err != nil {
		return runLookupError(args[0], err)
	}
	outcomes, err := db.ListOutcomes(run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", run.ID)
	fmt.Fprintf(out, "Status:    %s\n", run.Status)
	fmt.Fprintf(out, "Work dir:  %s\n", run.WorkDir)
	fmt.Fprintf(out, "Matrix:    %s\n", run.Matrix)
	fmt.Fprintf(out, "rzsz:      %s\n", run.Rzsz)
	if run.Revision != "" {
		fmt.Fprintf(out, "Revision:  %s\n", run.Revision)
	}
	fmt.Fprintf(out, "Started:   %s\n", run.StartedAt.Local().Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Duration:  %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Scenarios: %d passed, %d failed, %d skipped of %d\n", run.Passed, run.Failed, run.Skipped, run.Total)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", run.Error)
	}

	if len(outcomes) == 0 {
		return nil
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCENARIO\tPROTOCOL\tRESULT\tEXIT\tDURATION")
	for _, o := range outcomes {
		result := "PASS"
		if !o.Passed {
			result = "FAIL " + o.Reason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", o.Seq+1, o.Scenario, o.Protocol, result, o.ExitCode, o.Duration)
	}
	w.Flush()

	if withDiff {
		for _, o := range outcomes {
			if o.Diff == "" {
				continue
			}
			fmt.Fprintf(out, "\n--- %s\n%s", o.Scenario, o.Diff)
			if !strings.HasSuffix(o.Diff, "\n") {
				fmt.Fprintln(out)
			}
		}
	}
	return nil
}

func runHistoryRm(cmd *cobra.Command, args []string) error {
	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRunByPrefix(args[0])
	if err != nil {
		return runLookupError(args[0], err)
	}
	if err := db.DeleteRun(run.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", state.ShortID(run.ID))
	return nil
}

func runLookupError(prefix string, err error) error {
	switch {
	case errors.Is(err, state.ErrRunNotFound):
		return fmt.Errorf("no run matches %q", prefix)
	case errors.Is(err, state.ErrAmbiguousPrefix):
		return fmt.Errorf("run ID %q is ambiguous\n\nHint: use a longer prefix, see \"modemcheck history\"", prefix)
	}
	return err
}

// formatTimeAgo formats t relative to now.
func formatTimeAgo(now, t time.Time) string {
	d := now.Sub(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
