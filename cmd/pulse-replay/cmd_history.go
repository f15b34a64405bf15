package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		asJSON  bool
		jrnPath string
		runID   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.GetJournalPath()
			if jrnPath != "" {
				path = jrnPath
			}
			j, closeJournal, err := a.withJournal(path)
			if err != nil {
				return err
			}
			defer closeJournal()
			if j == nil {
				return errors.New("no journal configured")
			}

			ctx := cmd.Context()
			if runID != "" {
				run, err := j.Get(ctx, runID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			runs, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(runs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tCOMMAND\tMODE\tSTATUS\tWAKE\tBURST\tELAPSED\tRUN")
			for _, r := range runs {
				mode := r.Mode
				if r.DryRun {
					mode += " (dry)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Command, mode, r.Status,
					r.WakeSent, r.BurstSent, r.Elapsed().Round(time.Millisecond), r.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&jrnPath, "journal", "", "journal database (overrides config)")
	cmd.Flags().StringVar(&runID, "run", "", "show a single run")
	return cmd
}
