package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/gitutil"
	"github.com/Quidge/modemcheck/internal/pathutil"
	"github.com/Quidge/modemcheck/internal/runner"
	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conformance matrix",
	Long: `Run every scenario of the matrix in order over a fresh virtual link.

The log files and the results directory are reset first. The run stops at
the first failing scenario; remaining scenarios are reported as skipped.
The link provider and any transmitter still running are stopped on every
exit path, including interrupts.

Exit status is 0 when every scenario passed and 1 otherwise.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("matrix", "", "named matrix to run (overrides the project scenarios)")
	runCmd.Flags().StringSlice("only", nil, "run only the named scenarios, in matrix order")
	runCmd.Flags().String("rzsz", "", "rzsz executable")
	runCmd.Flags().Int("speed", 0, "line speed passed to both sides")
	runCmd.Flags().Int("stop-bits", 0, "stop bits passed to both sides (1 or 2)")
	runCmd.Flags().Duration("settle", 0, "transmitter head start")
	runCmd.Flags().String("comparator", "", "result comparison: diff or bytes")
	runCmd.Flags().Bool("probe", false, "check the link carries data before the first scenario")
	runCmd.Flags().String("history", "", "history database path")
	runCmd.Flags().Bool("no-history", false, "do not record the run")
	runCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file")
	runCmd.Flags().Bool("durations", false, "show the duration of each scenario")
}

func runRun(cmd *cobra.Command, args []string) error {
	flags := config.FlagOverrides{}
	flags.Matrix, _ = cmd.Flags().GetString("matrix")
	flags.Rzsz, _ = cmd.Flags().GetString("rzsz")
	flags.Speed, _ = cmd.Flags().GetInt("speed")
	flags.StopBits, _ = cmd.Flags().GetInt("stop-bits")
	flags.Settle, _ = cmd.Flags().GetDuration("settle")
	flags.Comparator, _ = cmd.Flags().GetString("comparator")
	flags.History, _ = cmd.Flags().GetString("history")
	flags.NoHistory, _ = cmd.Flags().GetBool("no-history")
	only, _ := cmd.Flags().GetStringSlice("only")
	probe, _ := cmd.Flags().GetBool("probe")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	durations, _ := cmd.Flags().GetBool("durations")

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := slog.Default()

	m, err := scenario.FromConfig(cfg)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		if m, err = m.Filter(only...); err != nil {
			return err
		}
	}

	if !pathutil.Exists(cfg.Rzsz) {
		log.Warn("rzsz executable not found, relying on PATH", "rzsz", cfg.Rzsz)
	}

	harness, err := pathutil.OpenAppend(cfg.Logs.Harness)
	if err != nil {
		return fmt.Errorf("failed to open harness log: %w", err)
	}
	defer harness.Close()

	orch, err := newOrchestrator(cfg, harness, log)
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, probe)
	if err != nil {
		return err
	}

	reporter := runner.NewReporter(cmd.OutOrStdout())
	reporter.Durations = durations

	ctrl := &runner.Controller{
		Provider:     provider,
		Orchestrator: orch,
		ResultsDir:   cfg.ResultsDir,
		Logs:         cfg.Logs,
		Reporter:     reporter,
		Metrics:      runner.NewMetrics(),
		Log:          log,
	}

	if cfg.HistoryEnabled {
		db, err := state.Open(cfg.HistoryPath)
		if err != nil {
			log.Warn("run history unavailable", "error", err)
		} else {
			defer db.Close()
			ctrl.Recorder = &runner.History{
				DB:       db,
				WorkDir:  cfg.WorkDir,
				Matrix:   matrixName(cfg),
				Rzsz:     cfg.Rzsz,
				Revision: revision(cfg.Rzsz),
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("starting run", "work_dir", cfg.WorkDir, "matrix", matrixName(cfg), "scenarios", m.Len())
	res, err := ctrl.Run(ctx, m)
	if err != nil {
		return err
	}
	if ctrl.Recorder != nil {
		log.Debug("run recorded", "id", state.ShortID(res.RunID))
	}

	if metricsFile != "" {
		if err := ctrl.Metrics.WriteTextfile(metricsFile); err != nil {
			log.Warn("failed to export metrics", "path", metricsFile, "error", err)
		}
	}

	if !res.Passed() {
		return &ExitError{Code: 1}
	}
	return nil
}

// matrixName is the label recorded with a run.
func matrixName(cfg config.MergedConfig) string {
	if len(cfg.Scenarios) > 0 {
		return config.ProjectConfigFilename
	}
	return cfg.Matrix
}

// revision describes the source tree the rzsz executable was built from, or
// returns "" when that is not a git checkout.
func revision(rzsz string) string {
	rev, err := gitutil.Revision(filepath.Dir(rzsz))
	if err != nil {
		return ""
	}
	return rev
}
