package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/ticker"
)

// historyRow joins one day's metric with its medians.
type historyRow struct {
	Metric  metrics.DailyMetric
	Value   decimal.NullDecimal
	Medians [3]decimal.NullDecimal
}

// Export renders one ticker's metric and median history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	tk, err := ticker.Normalize(opts.Ticker)
	if err != nil {
		return err
	}
	metricType := opts.MetricType
	if metricType == "" {
		metricType = metrics.PER
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := calendar.Day(time.Now().UTC())
	if opts.To != nil {
		to = calendar.Day(*opts.To)
	}
	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = calendar.Day(*opts.From)
	}
	if to.Before(from) {
		return errors.New("from must not be after to")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	daily, err := store.ListDailyMetrics(ctx, tk, from, to)
	if err != nil {
		return err
	}
	medians, err := store.ListMedians(ctx, tk, from, to)
	if err != nil {
		return err
	}
	rows := joinHistory(daily, medians, metricType)
	if len(rows) == 0 {
		a.Logger.Info().Str("ticker", tk).Msg("no metrics found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Str("ticker", tk).Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting metric history")

	labels := a.windowLabels()
	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, metricType, labels, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, tk, metricType, labels, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) windowLabels() [3]string {
	w := a.Config.Signal.Windows
	return [3]string{w.Short.Label, w.Medium.Label, w.Long.Label}
}

func joinHistory(daily []metrics.DailyMetric, medians []median.MetricMedian, t metrics.MetricType) []historyRow {
	byDay := make(map[string]median.MetricMedian, len(medians))
	for _, m := range medians {
		if m.MetricType == t {
			byDay[calendar.Format(m.TradeDate)] = m
		}
	}
	rows := make([]historyRow, 0, len(daily))
	for _, d := range daily {
		row := historyRow{Metric: d, Value: d.Value(t)}
		if m, ok := byDay[calendar.Format(d.TradeDate)]; ok {
			row.Medians = [3]decimal.NullDecimal{m.Median1W, m.Median3M, m.Median1Y}
		}
		rows = append(rows, row)
	}
	return rows
}

func downsampleRows(rows []historyRow, max int) []historyRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]historyRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeHistoryCSV(path string, t metrics.MetricType, labels [3]string, rows []historyRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"trade_date", "metric_type", "value"}
	for _, l := range labels {
		header = append(header, "median_"+l)
	}
	header = append(header, "close_price", "eps_forecast", "sales_forecast", "market_cap", "data_source")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			calendar.Format(row.Metric.TradeDate),
			string(t),
			nullText(row.Value),
			nullText(row.Medians[0]),
			nullText(row.Medians[1]),
			nullText(row.Medians[2]),
			nullText(row.Metric.ClosePrice),
			nullText(row.Metric.EPSForecast),
			nullText(row.Metric.SalesForecast),
			nullText(row.Metric.MarketCap),
			row.Metric.DataSource,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path, tk string, t metrics.MetricType, labels [3]string, rows []historyRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var series []chart.Series
	add := func(name string, pick func(historyRow) decimal.NullDecimal) {
		var xs []time.Time
		var ys []float64
		for _, row := range rows {
			v := pick(row)
			if !v.Valid {
				continue
			}
			xs = append(xs, row.Metric.TradeDate)
			ys = append(ys, v.Decimal.InexactFloat64())
		}
		// go-chart needs two points to draw a line
		if len(xs) < 2 {
			return
		}
		series = append(series, chart.TimeSeries{Name: name, XValues: xs, YValues: ys})
	}
	add(string(t), func(r historyRow) decimal.NullDecimal { return r.Value })
	for i, l := range labels {
		add(fmt.Sprintf("median %s", l), func(r historyRow) decimal.NullDecimal { return r.Medians[i] })
	}
	if len(series) == 0 {
		return errors.New("not enough data points to draw a chart")
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s %s", tk, t),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           string(t),
			ValueFormatter: valueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func nullText(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}

func formatNull(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.StringFixed(places)
}
