package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SIOR/internal/config"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sior",
		Short: "Joint-attention reaction time experiment",
		Long: `sior runs a reaction time experiment on the terminal.

A simulated partner points at one of three targets, then one of two
response targets lights up and the participant presses its key. Each
trial's reaction time and whether the response matched the partner's
location is written to a CSV log when the session ends.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/sior/config.toml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for logs, archive and session database")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newSessionsCmd(),
		newExportCmd(),
		newCheckCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}
