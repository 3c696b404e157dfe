package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"valuewatcher/internal/app"
	"valuewatcher/internal/calendar"
	"valuewatcher/internal/metrics"
)

var (
	exportTicker    string
	exportMetric    string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a ticker's metric and median history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportTicker == "" {
			return fmt.Errorf("--ticker must be provided")
		}
		metricType, err := metrics.ParseMetricType(exportMetric)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Ticker:     exportTicker,
			MetricType: metricType,
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			MaxPoints:  exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := calendar.ParseDate(exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := calendar.ParseDate(exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTicker, "ticker", "", "Ticker such as 7203:TSE")
	exportCmd.Flags().StringVar(&exportMetric, "metric", string(metrics.PER), "Metric type: PER or PSR")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First trade date (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last trade date (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
