package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"SIOR/internal/session"
	"SIOR/internal/triallog"
)

type checkResult struct {
	Path     string   `json:"path"`
	Trials   int      `json:"trials"`
	Problems []string `json:"problems"`
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <log.csv|archive.csv.zst>",
		Short: "Verify a trial log",
		Long: `Verify a trial log or archived log.

Checks that trials are numbered 1..n, reaction times are not negative, and
each SameLocation value matches the partner and player positions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			r, err := triallog.OpenArchive(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			rows, err := triallog.Decode(r)
			if err != nil {
				return err
			}

			res := checkResult{Path: args[0], Trials: len(rows), Problems: []string{}}
			for i, row := range rows {
				if row.Trial != i+1 {
					res.Problems = append(res.Problems, fmt.Sprintf("row %d: trial number %d", i+1, row.Trial))
				}
				if row.ReactionTimeMs < 0 {
					res.Problems = append(res.Problems, fmt.Sprintf("trial %d: negative reaction time %d", row.Trial, row.ReactionTimeMs))
				}
				if want := session.SameLocation(row.PartnerPos, row.PlayerPos); row.SameLocation != want {
					res.Problems = append(res.Problems, fmt.Sprintf("trial %d: SameLocation is %t, positions say %t", row.Trial, row.SameLocation, want))
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := json.NewEncoder(out).Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s: %d trials\n", res.Path, res.Trials)
				for _, p := range res.Problems {
					fmt.Fprintf(out, "  %s\n", p)
				}
			}
			if len(res.Problems) > 0 {
				return fmt.Errorf("%d problems found", len(res.Problems))
			}
			return nil
		},
	}
}
