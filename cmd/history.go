package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/singlish-check/internal/observability"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history [SCENARIO_ID]",
		Short: "Shows stored runs, or the recent outcomes of one scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be a positive integer, got %d", limit)
			}
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, cleanup, err := openStore(ctx, cfg.Database(), observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := st.RecentRuns(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Fprintf(out, "%s  %s  %-10s %d/%d passed  %s\n",
						r.StartedAt.Local().Format(time.DateTime), r.RunID, r.Driver,
						r.Passed, r.Total, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "no runs stored")
				}
				return nil
			}

			id := args[0]
			entries, err := st.History(ctx, id, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "no outcomes stored for %s\n", id)
				return nil
			}
			passed := 0
			for _, e := range entries {
				status := color.GreenString("PASS")
				if e.Passed {
					passed++
				} else {
					status = color.RedString("FAIL")
				}
				fmt.Fprintf(out, "%s  %s  %s  %-10s %-20s %.2f  %q\n",
					e.StartedAt.Local().Format(time.DateTime), e.RunID, status, e.Driver, e.Code, e.Score, e.Actual)
			}
			fmt.Fprintf(out, "\n%s passed %d of the last %d runs (%.0f%%)\n",
				id, passed, len(entries), 100*float64(passed)/float64(len(entries)))
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show.")
	return historyCmd
}
