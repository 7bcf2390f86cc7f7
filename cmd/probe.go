package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Quidge/modemcheck/internal/config"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Provision the virtual link and check that it carries data",
	Long: `Provision the virtual link, open both endpoints with the configured line
settings, send a marker from the first endpoint to the second and tear the
link down again.

Use this to check a socat installation or a pair of static devices before
running the matrix.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Int("speed", 0, "line speed")
	probeCmd.Flags().Int("stop-bits", 0, "stop bits (1 or 2)")
	probeCmd.Flags().Bool("no-transfer", false, "only provision the link, do not send data")
}

func runProbe(cmd *cobra.Command, args []string) error {
	flags := config.FlagOverrides{}
	flags.Speed, _ = cmd.Flags().GetInt("speed")
	flags.StopBits, _ = cmd.Flags().GetInt("stop-bits")
	noTransfer, _ := cmd.Flags().GetBool("no-transfer")

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if noTransfer {
		cfg.Link.Probe = false
	}

	provider, err := newProvider(cfg, !noTransfer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := provider.Provision(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Provider:   %s\n", cfg.Link.Provider)
	if pid := l.Pid(); pid != 0 {
		fmt.Fprintf(out, "PID:        %d\n", pid)
	}
	fmt.Fprintf(out, "Endpoint A: %s\n", l.EndpointA)
	fmt.Fprintf(out, "Endpoint B: %s\n", l.EndpointB)
	if noTransfer {
		fmt.Fprintln(out, "Link provisioned")
	} else {
		fmt.Fprintf(out, "Link carries data at %d baud\n", cfg.Serial.Speed)
	}
	return nil
}
