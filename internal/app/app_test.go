package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuewatcher/internal/config"
	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/notify"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/storage"
	"valuewatcher/internal/watchlist"
)

func dec(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func loadTestConfig(t *testing.T, sourceURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	watchlistPath := filepath.Join(dir, "watchlist.toml")
	require.NoError(t, os.WriteFile(watchlistPath, []byte(`
[[tickers]]
ticker = "9999:TSE"
name = "テスト銘柄"
`), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
storage:
  driver: badger
  in_memory: true
scheduler:
  timezone: Asia/Tokyo
  advisory_lock_key: 0
watchlist:
  path: %s
marketdata:
  sources:
    - name: api
      kind: json
      base_url: %s
      timeout: 2s
`, watchlistPath, sourceURL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func TestEvaluateMissingEPSNotifiesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"close_price":"1500","eps_forecast":null,"sales_forecast":"90000","shares_outstanding":"1000","earnings_date":"2026-05-08"}`)
	}))
	defer srv.Close()

	a := NewApp(loadTestConfig(t, srv.URL), zerolog.Nop())
	res, err := a.Evaluate(context.Background(), EvaluateOptions{
		TradeDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Mode:      watchlist.ModeAll,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, "2026-03-04", res.TradeDate.Format(time.DateOnly))
}

func TestEvaluateSourceDownCountsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewApp(loadTestConfig(t, srv.URL), zerolog.Nop())
	res, err := a.Evaluate(context.Background(), EvaluateOptions{TradeDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, watchlist.ModeAll, res.Mode)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Errors)
	// the data-unknown notification still goes out
	assert.Equal(t, 1, res.Sent)
}

func TestSimulatedIntent(t *testing.T) {
	a := NewApp(loadTestConfig(t, "http://127.0.0.1:1"), zerolog.Nop())
	now := time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)

	in, err := a.simulatedIntent(SimulateOptions{Ticker: "7203:tse", Value: 10, Medians: [3]float64{12, 15, 20}}, now)
	require.NoError(t, err)
	assert.Equal(t, "7203:TSE", in.Ticker)
	assert.Equal(t, "超PER割安", in.Category)
	assert.Equal(t, "PER:1Y+3M+1W", in.ConditionKey)
	assert.True(t, in.IsStrong)
	assert.Equal(t, 1, in.StreakDays)
	// 16:00 UTC is already the next day in Tokyo
	assert.Equal(t, "2026-03-05", in.TradeDate.Format(time.DateOnly))

	in, err = a.simulatedIntent(SimulateOptions{Ticker: "7203:TSE", Value: 16, Medians: [3]float64{12, 18, 20}}, now)
	require.NoError(t, err)
	assert.Equal(t, "PER割安", in.Category)
	assert.False(t, in.IsStrong)

	_, err = a.simulatedIntent(SimulateOptions{Ticker: "7203:TSE", Value: 25, Medians: [3]float64{12, 18, 20}}, now)
	assert.Error(t, err)

	in, err = a.simulatedIntent(SimulateOptions{Ticker: "9999:TSE", DataUnknown: true}, now)
	require.NoError(t, err)
	assert.Equal(t, notify.DataUnknownKey("9999:TSE"), in.ConditionKey)
	assert.Equal(t, []string{metrics.FieldEPSForecast}, in.MissingFields)
}

func TestJoinAndWriteHistory(t *testing.T) {
	d1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	daily := []metrics.DailyMetric{
		{Ticker: "7203:TSE", TradeDate: d1, PER: dec(12), ClosePrice: dec(2500), DataSource: "api"},
		{Ticker: "7203:TSE", TradeDate: d2, DataSource: "api"},
	}
	medians := []median.MetricMedian{
		{Ticker: "7203:TSE", TradeDate: d1, MetricType: metrics.PER, Median1W: dec(13)},
		{Ticker: "7203:TSE", TradeDate: d1, MetricType: metrics.PSR, Median1W: dec(99)},
	}

	rows := joinHistory(daily, medians, metrics.PER)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Medians[0].Decimal.Equal(decimal.NewFromInt(13)))
	assert.False(t, rows[1].Value.Valid)

	path := filepath.Join(t.TempDir(), "out", "history.csv")
	require.NoError(t, writeHistoryCSV(path, metrics.PER, [3]string{"1W", "3M", "1Y"}, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"trade_date", "metric_type", "value", "median_1W", "median_3M", "median_1Y", "close_price", "eps_forecast", "sales_forecast", "market_cap", "data_source"}, records[0])
	assert.Equal(t, []string{"2026-03-02", "PER", "12", "13", "", "", "2500", "", "", "", "api"}, records[1])
	assert.Equal(t, "", records[2][2])
}

func TestWriteHistoryPNG(t *testing.T) {
	var rows []historyRow
	for i := 0; i < 5; i++ {
		day := time.Date(2026, 3, 2+i, 0, 0, 0, 0, time.UTC)
		rows = append(rows, historyRow{
			Metric:  metrics.DailyMetric{TradeDate: day},
			Value:   dec(int64(10 + i)),
			Medians: [3]decimal.NullDecimal{dec(12), {}, {}},
		})
	}
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, writeHistoryPNG(path, "7203:TSE", metrics.PER, [3]string{"1W", "3M", "1Y"}, rows))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	err = writeHistoryPNG(path, "7203:TSE", metrics.PER, [3]string{"1W", "3M", "1Y"}, rows[:1])
	assert.Error(t, err)
}

func TestDownsampleRows(t *testing.T) {
	rows := make([]historyRow, 10)
	for i := range rows {
		rows[i].Value = dec(int64(i))
	}
	out := downsampleRows(rows, 4)
	require.Len(t, out, 4)
	assert.True(t, out[0].Value.Decimal.Equal(decimal.NewFromInt(0)))
	assert.True(t, out[3].Value.Decimal.Equal(decimal.NewFromInt(9)))
	assert.Len(t, downsampleRows(rows, 20), 10)
}

func TestRenderShow(t *testing.T) {
	var buf bytes.Buffer
	states := []signal.State{{
		Ticker: "1234:TSE", TradeDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), MetricType: metrics.PER,
		MetricValue: dec(8), Label: "1Y+3M+1W", Category: "超PER割安", StreakDays: 3, IsStrong: true,
	}}
	records := []storage.NotificationRecord{{
		Ticker: "1234:TSE", Category: "超PER割安", ConditionKey: "PER:1Y+3M+1W", Channel: "DISCORD",
		SentAt: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), IsStrong: true,
	}}
	runs := []storage.TickerRun{{Ticker: "9999:TSE", TradeDate: states[0].TradeDate, Status: storage.RunFailed, Reason: "source down\nretry later"}}
	require.NoError(t, renderShow(&buf, states, records, runs))
	out := buf.String()
	assert.Contains(t, out, "source down retry later")
	assert.Contains(t, out, storage.RunFailed)
	assert.Contains(t, out, "1234:TSE")
	assert.Contains(t, out, "8.00")
	assert.Contains(t, out, "PER:1Y+3M+1W")
	assert.Contains(t, out, "2026-03-04T09:00:00Z")

	buf.Reset()
	require.NoError(t, renderShow(&buf, nil, nil, nil))
	assert.Contains(t, buf.String(), "no signal states found")
	assert.Contains(t, buf.String(), "no notifications found")
}
