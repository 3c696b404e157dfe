package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"

	"valuewatcher/internal/config"
	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/signal"
)

const (
	dayLayout     = "2006-01-02"
	sentKeyLayout = "20060102T150405.000000000"
)

type dailyMetricRow struct {
	Key           string `badgerhold:"key"`
	Ticker        string
	Day           string
	ClosePrice    string
	EPSForecast   string
	SalesForecast string
	MarketCap     string
	PER           string
	PSR           string
	DataSource    string
	FetchedAt     time.Time
}

type medianRow struct {
	Key          string `badgerhold:"key"`
	Ticker       string
	Day          string
	MetricType   string
	Median1W     string
	Median3M     string
	Median1Y     string
	CalculatedAt time.Time
}

type signalStateRow struct {
	Key             string `badgerhold:"key"`
	Ticker          string
	Day             string
	MetricType      string
	MetricValue     string
	Under1W         bool
	Under3M         bool
	Under1Y         bool
	Combo           bool
	IsStrong        bool
	Label           string
	Category        string
	MetricAvailable bool
	StreakDays      int
	UpdatedAt       time.Time
}

type notificationRow struct {
	ID           string `badgerhold:"key"`
	Ticker       string
	Category     string
	ConditionKey string
	SentAt       time.Time
	SentKey      string
	Channel      string
	PayloadHash  string
	IsStrong     bool
}

type tickerRunRow struct {
	Key        string `badgerhold:"key"`
	Ticker     string
	Day        string
	Status     string
	Reason     string
	RecordedAt time.Time
}

// BadgerStore is the embedded single-node repository.
type BadgerStore struct {
	store *badgerhold.Store
	lock  sync.Mutex
}

var _ Repository = (*BadgerStore)(nil)

// OpenBadger opens the badger store at cfg.BadgerDir, or in memory when cfg.InMemory is set.
func OpenBadger(cfg config.StorageConfig) (*BadgerStore, error) {
	options := badgerhold.DefaultOptions
	if cfg.InMemory {
		options.Options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.BadgerDir == "" {
			return nil, fmt.Errorf("storage.badger_dir is required")
		}
		if err := os.MkdirAll(cfg.BadgerDir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		options.Options = badger.DefaultOptions(cfg.BadgerDir)
	}
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{store: store}, nil
}

// Close closes the underlying database.
func (b *BadgerStore) Close() error {
	if b == nil || b.store == nil {
		return nil
	}
	return b.store.Close()
}

// TryAdvisoryLock guards batches within this process; badger has a single writer process.
func (b *BadgerStore) TryAdvisoryLock(_ context.Context, _ int64) (func(), bool, error) {
	if !b.lock.TryLock() {
		return nil, false, nil
	}
	return b.lock.Unlock, true, nil
}

func rowKey(ticker string, day time.Time) string {
	return ticker + "|" + day.Format(dayLayout)
}

// UpsertDailyMetric writes the row for (ticker, trade_date).
func (b *BadgerStore) UpsertDailyMetric(_ context.Context, m metrics.DailyMetric) error {
	row := dailyMetricRow{
		Key:           rowKey(m.Ticker, m.TradeDate),
		Ticker:        m.Ticker,
		Day:           m.TradeDate.Format(dayLayout),
		ClosePrice:    nullString(m.ClosePrice),
		EPSForecast:   nullString(m.EPSForecast),
		SalesForecast: nullString(m.SalesForecast),
		MarketCap:     nullString(m.MarketCap),
		PER:           nullString(m.PER),
		PSR:           nullString(m.PSR),
		DataSource:    m.DataSource,
		FetchedAt:     m.FetchedAt,
	}
	if err := b.store.Upsert(row.Key, &row); err != nil {
		return fmt.Errorf("upsert daily metric: %w", err)
	}
	return nil
}

// GetDailyMetric loads one row or ErrNotFound.
func (b *BadgerStore) GetDailyMetric(_ context.Context, ticker string, tradeDate time.Time) (metrics.DailyMetric, error) {
	var row dailyMetricRow
	if err := b.store.Get(rowKey(ticker, tradeDate), &row); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return metrics.DailyMetric{}, ErrNotFound
		}
		return metrics.DailyMetric{}, fmt.Errorf("get daily metric: %w", err)
	}
	return row.toMetric()
}

// ListDailyMetrics lists rows in [from, to] ordered by trade date.
func (b *BadgerStore) ListDailyMetrics(_ context.Context, ticker string, from, to time.Time) ([]metrics.DailyMetric, error) {
	var rows []dailyMetricRow
	query := badgerhold.Where("Ticker").Eq(ticker).
		And("Day").Ge(from.Format(dayLayout)).
		And("Day").Le(to.Format(dayLayout)).
		SortBy("Day")
	if err := b.store.Find(&rows, query); err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	out := make([]metrics.DailyMetric, 0, len(rows))
	for _, row := range rows {
		m, err := row.toMetric()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// MetricHistory returns the newest limit defined values up to and including upTo, oldest first.
func (b *BadgerStore) MetricHistory(_ context.Context, ticker string, t metrics.MetricType, upTo time.Time, limit int) ([]median.Point, error) {
	field := "PER"
	if t == metrics.PSR {
		field = "PSR"
	}
	var rows []dailyMetricRow
	query := badgerhold.Where("Ticker").Eq(ticker).
		And("Day").Le(upTo.Format(dayLayout)).
		And(field).Ne("").
		SortBy("Day").Reverse().
		Limit(limit)
	if err := b.store.Find(&rows, query); err != nil {
		return nil, fmt.Errorf("metric history: %w", err)
	}

	points := make([]median.Point, len(rows))
	for i, row := range rows {
		m, err := row.toMetric()
		if err != nil {
			return nil, err
		}
		points[len(rows)-1-i] = median.Point{TradeDate: m.TradeDate, Value: m.Value(t)}
	}
	return points, nil
}

// UpsertMedian writes the medians for (ticker, trade_date).
func (b *BadgerStore) UpsertMedian(_ context.Context, m median.MetricMedian) error {
	row := medianRow{
		Key:          rowKey(m.Ticker, m.TradeDate),
		Ticker:       m.Ticker,
		Day:          m.TradeDate.Format(dayLayout),
		MetricType:   string(m.MetricType),
		Median1W:     nullString(m.Median1W),
		Median3M:     nullString(m.Median3M),
		Median1Y:     nullString(m.Median1Y),
		CalculatedAt: m.CalculatedAt,
	}
	if err := b.store.Upsert(row.Key, &row); err != nil {
		return fmt.Errorf("upsert metric median: %w", err)
	}
	return nil
}

// ListMedians lists medians in [from, to] ordered by trade date.
func (b *BadgerStore) ListMedians(_ context.Context, ticker string, from, to time.Time) ([]median.MetricMedian, error) {
	var rows []medianRow
	query := badgerhold.Where("Ticker").Eq(ticker).
		And("Day").Ge(from.Format(dayLayout)).
		And("Day").Le(to.Format(dayLayout)).
		SortBy("Day")
	if err := b.store.Find(&rows, query); err != nil {
		return nil, fmt.Errorf("list metric medians: %w", err)
	}
	out := make([]median.MetricMedian, 0, len(rows))
	for _, row := range rows {
		day, err := time.Parse(dayLayout, row.Day)
		if err != nil {
			return nil, fmt.Errorf("parse trade date: %w", err)
		}
		rec := median.MetricMedian{
			Ticker:       row.Ticker,
			TradeDate:    day,
			MetricType:   metrics.MetricType(row.MetricType),
			CalculatedAt: row.CalculatedAt,
		}
		if rec.Median1W, err = parseNullString(row.Median1W); err != nil {
			return nil, err
		}
		if rec.Median3M, err = parseNullString(row.Median3M); err != nil {
			return nil, err
		}
		if rec.Median1Y, err = parseNullString(row.Median1Y); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpsertSignalState writes the state for (ticker, trade_date).
func (b *BadgerStore) UpsertSignalState(_ context.Context, st signal.State) error {
	row := signalStateRow{
		Key:             rowKey(st.Ticker, st.TradeDate),
		Ticker:          st.Ticker,
		Day:             st.TradeDate.Format(dayLayout),
		MetricType:      string(st.MetricType),
		MetricValue:     nullString(st.MetricValue),
		Under1W:         st.Under1W,
		Under3M:         st.Under3M,
		Under1Y:         st.Under1Y,
		Combo:           st.Combo,
		IsStrong:        st.IsStrong,
		Label:           st.Label,
		Category:        st.Category,
		MetricAvailable: st.MetricAvailable,
		StreakDays:      st.StreakDays,
		UpdatedAt:       st.UpdatedAt,
	}
	if err := b.store.Upsert(row.Key, &row); err != nil {
		return fmt.Errorf("upsert signal state: %w", err)
	}
	return nil
}

// GetSignalState loads the state for one trade date, nil when absent.
func (b *BadgerStore) GetSignalState(_ context.Context, ticker string, tradeDate time.Time) (*signal.State, error) {
	var row signalStateRow
	if err := b.store.Get(rowKey(ticker, tradeDate), &row); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get signal state: %w", err)
	}
	st, err := row.toState()
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListRecentSignalStates lists the newest states across tickers.
func (b *BadgerStore) ListRecentSignalStates(_ context.Context, limit int) ([]signal.State, error) {
	var rows []signalStateRow
	query := (&badgerhold.Query{}).SortBy("Day").Reverse().Limit(limit)
	if err := b.store.Find(&rows, query); err != nil {
		return nil, fmt.Errorf("list recent signal states: %w", err)
	}
	out := make([]signal.State, 0, len(rows))
	for _, row := range rows {
		st, err := row.toState()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// AppendNotification inserts a record. Replaying the same ID is a no-op.
func (b *BadgerStore) AppendNotification(_ context.Context, rec NotificationRecord) error {
	row := notificationRow{
		ID:           rec.ID,
		Ticker:       rec.Ticker,
		Category:     rec.Category,
		ConditionKey: rec.ConditionKey,
		SentAt:       rec.SentAt,
		SentKey:      rec.SentAt.UTC().Format(sentKeyLayout),
		Channel:      rec.Channel,
		PayloadHash:  rec.PayloadHash,
		IsStrong:     rec.IsStrong,
	}
	if err := b.store.Insert(row.ID, &row); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// LastNotification returns the newest record for (ticker, condition_key), nil when absent.
func (b *BadgerStore) LastNotification(_ context.Context, ticker, conditionKey string) (*NotificationRecord, error) {
	return b.findOneNotification(badgerhold.Where("Ticker").Eq(ticker).And("ConditionKey").Eq(conditionKey))
}

// LatestNotificationWithPrefix returns the newest record whose condition key starts with prefix.
func (b *BadgerStore) LatestNotificationWithPrefix(_ context.Context, ticker, prefix string) (*NotificationRecord, error) {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix))
	return b.findOneNotification(badgerhold.Where("Ticker").Eq(ticker).And("ConditionKey").RegExp(pattern))
}

func (b *BadgerStore) findOneNotification(query *badgerhold.Query) (*NotificationRecord, error) {
	var rows []notificationRow
	if err := b.store.Find(&rows, query.SortBy("SentKey").Reverse().Limit(1)); err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].toRecord()
	return &rec, nil
}

// ListRecentNotifications lists the newest records across tickers.
func (b *BadgerStore) ListRecentNotifications(_ context.Context, limit int) ([]NotificationRecord, error) {
	var rows []notificationRow
	query := (&badgerhold.Query{}).SortBy("SentKey").Reverse().Limit(limit)
	if err := b.store.Find(&rows, query); err != nil {
		return nil, fmt.Errorf("list recent notifications: %w", err)
	}
	out := make([]NotificationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// RecordTickerRun stores the latest outcome for (ticker, trade_date).
func (b *BadgerStore) RecordTickerRun(_ context.Context, run TickerRun) error {
	row := tickerRunRow{
		Key:        rowKey(run.Ticker, run.TradeDate),
		Ticker:     run.Ticker,
		Day:        run.TradeDate.Format(dayLayout),
		Status:     run.Status,
		Reason:     run.Reason,
		RecordedAt: run.RecordedAt,
	}
	if err := b.store.Upsert(row.Key, &row); err != nil {
		return fmt.Errorf("record ticker run: %w", err)
	}
	return nil
}

// ListTickerRuns lists outcomes for a trade date.
func (b *BadgerStore) ListTickerRuns(_ context.Context, tradeDate time.Time) ([]TickerRun, error) {
	var rows []tickerRunRow
	if err := b.store.Find(&rows, badgerhold.Where("Day").Eq(tradeDate.Format(dayLayout))); err != nil {
		return nil, fmt.Errorf("list ticker runs: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Ticker < rows[j].Ticker })

	out := make([]TickerRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, TickerRun{
			Ticker:     row.Ticker,
			TradeDate:  tradeDate,
			Status:     row.Status,
			Reason:     row.Reason,
			RecordedAt: row.RecordedAt,
		})
	}
	return out, nil
}

func (r dailyMetricRow) toMetric() (metrics.DailyMetric, error) {
	day, err := time.Parse(dayLayout, r.Day)
	if err != nil {
		return metrics.DailyMetric{}, fmt.Errorf("parse trade date: %w", err)
	}
	m := metrics.DailyMetric{
		Ticker:     r.Ticker,
		TradeDate:  day,
		DataSource: r.DataSource,
		FetchedAt:  r.FetchedAt,
	}
	fields := []struct {
		raw string
		dst *decimal.NullDecimal
	}{
		{r.ClosePrice, &m.ClosePrice},
		{r.EPSForecast, &m.EPSForecast},
		{r.SalesForecast, &m.SalesForecast},
		{r.MarketCap, &m.MarketCap},
		{r.PER, &m.PER},
		{r.PSR, &m.PSR},
	}
	for _, f := range fields {
		v, err := parseNullString(f.raw)
		if err != nil {
			return metrics.DailyMetric{}, err
		}
		*f.dst = v
	}
	return m, nil
}

func (r signalStateRow) toState() (signal.State, error) {
	day, err := time.Parse(dayLayout, r.Day)
	if err != nil {
		return signal.State{}, fmt.Errorf("parse trade date: %w", err)
	}
	value, err := parseNullString(r.MetricValue)
	if err != nil {
		return signal.State{}, err
	}
	return signal.State{
		Ticker:          r.Ticker,
		TradeDate:       day,
		MetricType:      metrics.MetricType(r.MetricType),
		MetricValue:     value,
		Under1W:         r.Under1W,
		Under3M:         r.Under3M,
		Under1Y:         r.Under1Y,
		Combo:           r.Combo,
		IsStrong:        r.IsStrong,
		Label:           r.Label,
		Category:        r.Category,
		MetricAvailable: r.MetricAvailable,
		StreakDays:      r.StreakDays,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func (r notificationRow) toRecord() NotificationRecord {
	return NotificationRecord{
		ID:           r.ID,
		Ticker:       r.Ticker,
		Category:     r.Category,
		ConditionKey: r.ConditionKey,
		SentAt:       r.SentAt,
		Channel:      r.Channel,
		PayloadHash:  r.PayloadHash,
		IsStrong:     r.IsStrong,
	}
}

// nullString encodes an optional decimal; the empty string is NULL.
func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}

func parseNullString(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse decimal %q: %w", raw, err)
	}
	return decimal.NewNullDecimal(d), nil
}
