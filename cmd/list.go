package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Quidge/modemcheck/internal/config"
	"github.com/Quidge/modemcheck/internal/scenario"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the scenarios of the matrix",
	Long: `List the scenarios that "modemcheck run" would execute, in order.

Paths are shown relative to the work directory.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("matrix", "", "named matrix to list (overrides the project scenarios)")
	listCmd.Flags().Bool("names", false, "print scenario names only")
}

func runList(cmd *cobra.Command, args []string) error {
	matrix, _ := cmd.Flags().GetString("matrix")
	namesOnly, _ := cmd.Flags().GetBool("names")

	cfg, err := loadConfig(config.FlagOverrides{Matrix: matrix})
	if err != nil {
		return err
	}
	m, err := scenario.FromConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if namesOnly {
		for _, sc := range m.All() {
			fmt.Fprintln(out, sc.Name)
		}
		return nil
	}

	printMatrix(out, m, cfg.WorkDir)
	return nil
}

func printMatrix(out io.Writer, m scenario.Matrix, base string) {
	if m.Len() == 0 {
		fmt.Fprintln(out, "No scenarios.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tFLAGS\tSOURCE\tEXPECTED\tRESULT")
	for i, sc := range m.All() {
		flags := strings.Join(sc.TransmitArgs(), " ")
		if rx := strings.Join(sc.ReceiveArgs(), " "); rx != flags {
			flags += " / " + rx
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, sc.Name, flags, rel(base, sc.Source), rel(base, sc.Expected), rel(base, sc.Result))
	}
	w.Flush()
}

// rel shortens path for display when it lies under base.
func rel(base, path string) string {
	r, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}
	return r
}
