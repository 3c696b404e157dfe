package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/pipeline"
	"valuewatcher/internal/ticker"
)

var (
	rebuildFrom    string
	rebuildTo      string
	rebuildTickers []string
	rebuildDryRun  bool
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute medians and signal states from stored daily metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rebuildFrom == "" || rebuildTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := calendar.ParseDate(rebuildFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		to, err := calendar.ParseDate(rebuildTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}
		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := pipeline.RebuildOptions{From: from, To: to, DryRun: rebuildDryRun}
		for _, raw := range rebuildTickers {
			tk, err := ticker.Normalize(raw)
			if err != nil {
				return err
			}
			opts.Tickers = append(opts.Tickers, tk)
		}

		res, err := getApp().Rebuild(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tickers=%d days=%d missing=%d signals=%d dry_run=%t\n",
			res.Tickers, res.Days, res.Missing, res.Signals, rebuildDryRun)
		return nil
	},
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildFrom, "from", "", "First trade date (YYYY-MM-DD, inclusive)")
	rebuildCmd.Flags().StringVar(&rebuildTo, "to", "", "Last trade date (YYYY-MM-DD, inclusive)")
	rebuildCmd.Flags().StringSliceVar(&rebuildTickers, "ticker", nil, "Limit to these tickers (repeatable)")
	rebuildCmd.Flags().BoolVar(&rebuildDryRun, "dry-run", false, "Run without writing to storage")
}
