package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"valuewatcher/internal/app"
	"valuewatcher/internal/metrics"
)

var (
	simulateTicker  string
	simulateName    string
	simulateChannel string
	simulateMetric  string
	simulateValue   float64
	simulateMedians []float64
	simulateUnknown bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "指標と中央値を指定して通知を一回送信する",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricType, err := metrics.ParseMetricType(simulateMetric)
		if err != nil {
			return err
		}
		opts := app.SimulateOptions{
			Ticker:      simulateTicker,
			Name:        simulateName,
			Channel:     simulateChannel,
			MetricType:  metricType,
			Value:       simulateValue,
			DataUnknown: simulateUnknown,
		}
		if !simulateUnknown {
			if simulateValue <= 0 {
				return errors.New("--value は 0 より大きい必要があります")
			}
			if len(simulateMedians) != len(opts.Medians) {
				return errors.New("--medians は 1W,3M,1Y の 3 つを指定してください")
			}
			copy(opts.Medians[:], simulateMedians)
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateTicker, "ticker", "7203:TSE", "銘柄コード")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "銘柄名")
	simulateCmd.Flags().StringVar(&simulateChannel, "channel", "BOTH", "DISCORD, TELEGRAM or BOTH")
	simulateCmd.Flags().StringVar(&simulateMetric, "metric", string(metrics.PER), "PER or PSR")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "当日の指標値")
	simulateCmd.Flags().Float64SliceVar(&simulateMedians, "medians", nil, "1W,3M,1Y の中央値")
	simulateCmd.Flags().BoolVar(&simulateUnknown, "data-unknown", false, "データ不明通知を送る")
}
