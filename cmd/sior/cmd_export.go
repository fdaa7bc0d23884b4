package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SIOR/internal/store"
	"SIOR/internal/triallog"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a recorded session as a CSV trial log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				outPath = args[0] + ".csv"
			}

			st, err := store.Open(cfg.StorePath(), nil)
			if err != nil {
				return err
			}
			defer st.Close()

			sess, err := st.LoadSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := triallog.WriteFile(outPath, sess.Records); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d trials (%s session) to %s\n", len(sess.Records), sess.Status, outPath)
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "Output path (default <session-id>.csv)")
	return cmd
}
