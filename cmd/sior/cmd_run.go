package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"SIOR/internal/app"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment session",
		Long: `Run one experiment session in the terminal.

Press the start key (space by default) to begin. The session ends after
the configured number of trials, or when the abort key (q) or Ctrl+C is
pressed. Aborted sessions are kept in the session database but do not
overwrite the CSV log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("agent") {
				cfg.AgentKind, _ = cmd.Flags().GetString("agent")
			}
			if cmd.Flags().Changed("trials") {
				cfg.MaxTrials, _ = cmd.Flags().GetInt("trials")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Debug = true
			}
			if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
				cfg.Store.Enabled = false
			}
			if noTelemetry, _ := cmd.Flags().GetBool("no-telemetry"); noTelemetry {
				cfg.Telemetry.Enabled = false
			}

			a, err := app.New(cfg, app.WithIO(os.Stdin, cmd.OutOrStdout()), app.WithVersion(version))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			return a.Run(ctx)
		},
	}

	cmd.Flags().String("agent", "", "Partner agent kind (Realistic|Robot|Cartoon)")
	cmd.Flags().Int("trials", 0, "Number of trials")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	cmd.Flags().Bool("no-store", false, "Do not record the session in the session database")
	cmd.Flags().Bool("no-telemetry", false, "Do not export traces and metrics")

	return cmd
}
