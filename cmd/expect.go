package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/scenario"
)

var expectCmd = &cobra.Command{
	Use:   "expect",
	Short: "Generate the reference files of the matrix",
	Long: `Generate the reference file of every scenario from its source file.

XMODEM sends fixed-size blocks and pads the last one with 0x1A, so its
reference is the source rounded up to the block boundary. YMODEM carries the
file length and its reference equals the source. Scenarios whose reference
is the source file itself are only checked.

With --check nothing is written and the command fails if any reference is
missing or differs.`,
	Args: cobra.NoArgs,
	RunE: runExpect,
}

func init() {
	rootCmd.AddCommand(expectCmd)

	expectCmd.Flags().String("matrix", "", "named matrix (overrides the project scenarios)")
	expectCmd.Flags().Bool("check", false, "verify the reference files instead of writing them")
}

func runExpect(cmd *cobra.Command, args []string) error {
	matrix, _ := cmd.Flags().GetString("matrix")
	check, _ := cmd.Flags().GetBool("check")

	cfg, err := loadConfig(config.FlagOverrides{Matrix: matrix})
	if err != nil {
		return err
	}
	m, err := scenario.FromConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := message.NewPrinter(language.English)
	done := make(map[string]bool)
	bad := 0

	for _, sc := range m.All() {
		expected := filepath.Clean(sc.Expected)
		if done[expected] {
			continue
		}
		done[expected] = true
		name := rel(cfg.WorkDir, expected)

		info, err := os.Stat(sc.Source)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		want := scenario.ExpectedLength(sc.Protocol, info.Size())

		if check || expected == filepath.Clean(sc.Source) {
			ok, err := scenario.CheckExpected(sc.Protocol, sc.Source, expected)
			switch {
			case err != nil:
				bad++
				p.Fprintf(out, "MISSING %s: %v\n", name, err)
			case !ok:
				bad++
				p.Fprintf(out, "DIFFERS %s (want %d bytes)\n", name, want)
			default:
				p.Fprintf(out, "ok      %s (%d bytes)\n", name, want)
			}
			continue
		}

		if err := scenario.WriteExpected(sc.Protocol, sc.Source, expected); err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		p.Fprintf(out, "wrote   %s (%d bytes)\n", name, want)
	}

	if bad > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d reference file(s) need attention\n", bad)
		return &ExitError{Code: 1}
	}
	return nil
}
