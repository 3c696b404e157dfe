package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"valuewatcher/internal/app"
	"valuewatcher/internal/calendar"
	"valuewatcher/internal/watchlist"
)

var (
	evaluateDate string
	evaluateMode string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one batch for a trade date",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := watchlist.ParseMode(evaluateMode)
		if err != nil {
			return err
		}
		opts := app.EvaluateOptions{Mode: mode}
		if evaluateDate != "" {
			day, err := calendar.ParseDate(evaluateDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.TradeDate = day
		}

		res, err := getApp().Evaluate(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if res.LockHeld {
			fmt.Fprintln(cmd.OutOrStdout(), "another batch holds the lock; nothing done")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trade_date=%s mode=%s processed=%d sent=%d skipped=%d errors=%d not_processed=%d\n",
			calendar.Format(res.TradeDate), res.Mode, res.Processed, res.Sent, res.Skipped, res.Errors, res.NotProcessed)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateDate, "date", "", "Trade date (YYYY-MM-DD, defaults to the latest trading day)")
	evaluateCmd.Flags().StringVar(&evaluateMode, "mode", string(watchlist.ModeAll), "Execution mode: ALL, DAILY or AT_21")
}
