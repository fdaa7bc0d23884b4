package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"SIOR/internal/store"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.StorePath(), nil)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"data_dir": cfg.DataDir,
					"log_path": cfg.LogPath(),
					"sessions": sessions,
				})
			}

			fmt.Fprintf(out, "Data directory: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "Trial log:      %s\n\n", cfg.LogPath())
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "%s  %s  %-9s %-8s %d/%d trials\n",
					s.ID, s.StartTime.Local().Format("2006-01-02 15:04"), s.AgentKind, s.Status, s.TrialCount, s.MaxTrials)
			}
			return nil
		},
	}
}
