package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/signal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned by single-row lookups with no match.
	ErrNotFound = errors.New("storage: not found")
)

const (
	upsertDailyMetricSQL = `INSERT INTO daily_metrics (
        ticker,
        trade_date,
        close_price,
        eps_forecast,
        sales_forecast,
        market_cap,
        per_value,
        psr_value,
        data_source,
        fetched_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (ticker, trade_date) DO UPDATE
    SET
        close_price    = EXCLUDED.close_price,
        eps_forecast   = EXCLUDED.eps_forecast,
        sales_forecast = EXCLUDED.sales_forecast,
        market_cap     = EXCLUDED.market_cap,
        per_value      = EXCLUDED.per_value,
        psr_value      = EXCLUDED.psr_value,
        data_source    = EXCLUDED.data_source,
        fetched_at     = EXCLUDED.fetched_at;`

	selectDailyMetricColumns = `SELECT
        ticker,
        trade_date,
        close_price::text,
        eps_forecast::text,
        sales_forecast::text,
        market_cap::text,
        per_value::text,
        psr_value::text,
        data_source,
        fetched_at
    FROM daily_metrics`

	getDailyMetricSQL = selectDailyMetricColumns + `
    WHERE ticker = $1 AND trade_date = $2;`

	listDailyMetricsSQL = selectDailyMetricColumns + `
    WHERE ticker = $1
      AND trade_date >= $2
      AND trade_date <= $3
    ORDER BY trade_date;`

	metricHistorySQL = `SELECT trade_date, value FROM (
        SELECT trade_date,
               CASE WHEN $2 = 'PSR' THEN psr_value ELSE per_value END::text AS value
        FROM daily_metrics
        WHERE ticker = $1
          AND trade_date <= $3
          AND CASE WHEN $2 = 'PSR' THEN psr_value ELSE per_value END IS NOT NULL
        ORDER BY trade_date DESC
        LIMIT $4
    ) recent
    ORDER BY trade_date;`

	upsertMedianSQL = `INSERT INTO metric_medians (
        ticker,
        trade_date,
        metric_type,
        median_1w,
        median_3m,
        median_1y,
        calculated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (ticker, trade_date) DO UPDATE
    SET
        metric_type   = EXCLUDED.metric_type,
        median_1w     = EXCLUDED.median_1w,
        median_3m     = EXCLUDED.median_3m,
        median_1y     = EXCLUDED.median_1y,
        calculated_at = EXCLUDED.calculated_at;`

	listMediansSQL = `SELECT
        ticker,
        trade_date,
        metric_type,
        median_1w::text,
        median_3m::text,
        median_1y::text,
        calculated_at
    FROM metric_medians
    WHERE ticker = $1
      AND trade_date >= $2
      AND trade_date <= $3
    ORDER BY trade_date;`

	upsertSignalStateSQL = `INSERT INTO signal_states (
        ticker,
        trade_date,
        metric_type,
        metric_value,
        under_1w,
        under_3m,
        under_1y,
        combo,
        is_strong,
        label,
        category,
        metric_available,
        streak_days,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (ticker, trade_date) DO UPDATE
    SET
        metric_type      = EXCLUDED.metric_type,
        metric_value     = EXCLUDED.metric_value,
        under_1w         = EXCLUDED.under_1w,
        under_3m         = EXCLUDED.under_3m,
        under_1y         = EXCLUDED.under_1y,
        combo            = EXCLUDED.combo,
        is_strong        = EXCLUDED.is_strong,
        label            = EXCLUDED.label,
        category         = EXCLUDED.category,
        metric_available = EXCLUDED.metric_available,
        streak_days      = EXCLUDED.streak_days,
        updated_at       = EXCLUDED.updated_at;`

	selectSignalStateColumns = `SELECT
        ticker,
        trade_date,
        metric_type,
        metric_value::text,
        under_1w,
        under_3m,
        under_1y,
        combo,
        is_strong,
        label,
        category,
        metric_available,
        streak_days,
        updated_at
    FROM signal_states`

	getSignalStateSQL = selectSignalStateColumns + `
    WHERE ticker = $1 AND trade_date = $2;`

	listRecentSignalStatesSQL = selectSignalStateColumns + `
    ORDER BY trade_date DESC, ticker
    LIMIT $1;`

	insertNotificationSQL = `INSERT INTO notification_log (
        id,
        ticker,
        category,
        condition_key,
        sent_at,
        channel,
        payload_hash,
        is_strong
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (id) DO NOTHING;`

	selectNotificationColumns = `SELECT
        id,
        ticker,
        category,
        condition_key,
        sent_at,
        channel,
        payload_hash,
        is_strong
    FROM notification_log`

	lastNotificationSQL = selectNotificationColumns + `
    WHERE ticker = $1 AND condition_key = $2
    ORDER BY sent_at DESC
    LIMIT 1;`

	latestNotificationWithPrefixSQL = selectNotificationColumns + `
    WHERE ticker = $1 AND condition_key LIKE $2 || '%'
    ORDER BY sent_at DESC
    LIMIT 1;`

	listRecentNotificationsSQL = selectNotificationColumns + `
    ORDER BY sent_at DESC
    LIMIT $1;`

	upsertTickerRunSQL = `INSERT INTO ticker_runs (
        ticker,
        trade_date,
        status,
        reason,
        recorded_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (ticker, trade_date) DO UPDATE
    SET status      = EXCLUDED.status,
        reason      = EXCLUDED.reason,
        recorded_at = EXCLUDED.recorded_at;`

	listTickerRunsSQL = `SELECT ticker, trade_date, status, reason, recorded_at
    FROM ticker_runs
    WHERE trade_date = $1
    ORDER BY ticker;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DailyMetricStore persists the per-day metric rows and serves the median history.
type DailyMetricStore interface {
	UpsertDailyMetric(ctx context.Context, m metrics.DailyMetric) error
	GetDailyMetric(ctx context.Context, ticker string, tradeDate time.Time) (metrics.DailyMetric, error)
	ListDailyMetrics(ctx context.Context, ticker string, from, to time.Time) ([]metrics.DailyMetric, error)
	MetricHistoryReader
}

// MetricHistoryReader returns up to limit days on which the metric is defined, ending at upTo,
// oldest first.
type MetricHistoryReader interface {
	MetricHistory(ctx context.Context, ticker string, t metrics.MetricType, upTo time.Time, limit int) ([]median.Point, error)
}

// MedianStore persists computed medians.
type MedianStore interface {
	UpsertMedian(ctx context.Context, m median.MetricMedian) error
	ListMedians(ctx context.Context, ticker string, from, to time.Time) ([]median.MetricMedian, error)
}

// SignalStateStore persists signal states. GetSignalState returns nil without error when absent.
type SignalStateStore interface {
	UpsertSignalState(ctx context.Context, s signal.State) error
	GetSignalState(ctx context.Context, ticker string, tradeDate time.Time) (*signal.State, error)
	ListRecentSignalStates(ctx context.Context, limit int) ([]signal.State, error)
}

// NotificationLog is the append-only dedup index. Lookups return nil without error when absent.
// Appends must be safe for concurrent writers.
type NotificationLog interface {
	LastNotification(ctx context.Context, ticker, conditionKey string) (*NotificationRecord, error)
	LatestNotificationWithPrefix(ctx context.Context, ticker, prefix string) (*NotificationRecord, error)
	AppendNotification(ctx context.Context, rec NotificationRecord) error
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// TickerRunStore records per-ticker batch outcomes.
type TickerRunStore interface {
	RecordTickerRun(ctx context.Context, run TickerRun) error
	ListTickerRuns(ctx context.Context, tradeDate time.Time) ([]TickerRun, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository is everything a batch needs from persistence.
type Repository interface {
	DailyMetricStore
	MedianStore
	SignalStateStore
	NotificationLog
	TickerRunStore
	AdvisoryLocker
	Close() error
}

// Store is the PostgreSQL repository.
type Store struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Store)(nil)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertDailyMetric writes the row for (ticker, trade_date).
func (s *Store) UpsertDailyMetric(ctx context.Context, m metrics.DailyMetric) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertDailyMetricSQL,
		m.Ticker,
		m.TradeDate,
		numeric(m.ClosePrice),
		numeric(m.EPSForecast),
		numeric(m.SalesForecast),
		numeric(m.MarketCap),
		numeric(m.PER),
		numeric(m.PSR),
		m.DataSource,
		m.FetchedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert daily metric: %w", execErr)
	}
	return nil
}

// GetDailyMetric loads one row or ErrNotFound.
func (s *Store) GetDailyMetric(ctx context.Context, ticker string, tradeDate time.Time) (metrics.DailyMetric, error) {
	pool, err := s.getPool()
	if err != nil {
		return metrics.DailyMetric{}, err
	}
	rows, queryErr := pool.Query(ctx, getDailyMetricSQL, ticker, tradeDate)
	if queryErr != nil {
		return metrics.DailyMetric{}, fmt.Errorf("get daily metric: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return metrics.DailyMetric{}, rows.Err()
		}
		return metrics.DailyMetric{}, ErrNotFound
	}
	return scanDailyMetric(rows)
}

// ListDailyMetrics lists rows in [from, to] ordered by trade date.
func (s *Store) ListDailyMetrics(ctx context.Context, ticker string, from, to time.Time) ([]metrics.DailyMetric, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listDailyMetricsSQL, ticker, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily metrics: %w", queryErr)
	}
	defer rows.Close()

	out := make([]metrics.DailyMetric, 0)
	for rows.Next() {
		m, scanErr := scanDailyMetric(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MetricHistory returns the newest limit defined values up to and including upTo, oldest first.
func (s *Store) MetricHistory(ctx context.Context, ticker string, t metrics.MetricType, upTo time.Time, limit int) ([]median.Point, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, metricHistorySQL, ticker, string(t), upTo, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("metric history: %w", queryErr)
	}
	defer rows.Close()

	points := make([]median.Point, 0, limit)
	for rows.Next() {
		var (
			day   time.Time
			value *string
		)
		if err := rows.Scan(&day, &value); err != nil {
			return nil, err
		}
		v, convErr := parseNumeric(value)
		if convErr != nil {
			return nil, fmt.Errorf("parse metric value: %w", convErr)
		}
		points = append(points, median.Point{TradeDate: day, Value: v})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// UpsertMedian writes the medians for (ticker, trade_date).
func (s *Store) UpsertMedian(ctx context.Context, m median.MetricMedian) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertMedianSQL,
		m.Ticker,
		m.TradeDate,
		string(m.MetricType),
		numeric(m.Median1W),
		numeric(m.Median3M),
		numeric(m.Median1Y),
		m.CalculatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert metric median: %w", execErr)
	}
	return nil
}

// ListMedians lists medians in [from, to] ordered by trade date.
func (s *Store) ListMedians(ctx context.Context, ticker string, from, to time.Time) ([]median.MetricMedian, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listMediansSQL, ticker, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list metric medians: %w", queryErr)
	}
	defer rows.Close()

	out := make([]median.MetricMedian, 0)
	for rows.Next() {
		var (
			rec        median.MetricMedian
			metricType string
			w1, m3, y1 *string
		)
		if err := rows.Scan(&rec.Ticker, &rec.TradeDate, &metricType, &w1, &m3, &y1, &rec.CalculatedAt); err != nil {
			return nil, err
		}
		rec.MetricType = metrics.MetricType(metricType)
		var convErr error
		if rec.Median1W, convErr = parseNumeric(w1); convErr != nil {
			return nil, fmt.Errorf("parse median_1w: %w", convErr)
		}
		if rec.Median3M, convErr = parseNumeric(m3); convErr != nil {
			return nil, fmt.Errorf("parse median_3m: %w", convErr)
		}
		if rec.Median1Y, convErr = parseNumeric(y1); convErr != nil {
			return nil, fmt.Errorf("parse median_1y: %w", convErr)
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertSignalState writes the state for (ticker, trade_date).
func (s *Store) UpsertSignalState(ctx context.Context, st signal.State) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertSignalStateSQL,
		st.Ticker,
		st.TradeDate,
		string(st.MetricType),
		numeric(st.MetricValue),
		st.Under1W,
		st.Under3M,
		st.Under1Y,
		st.Combo,
		st.IsStrong,
		st.Label,
		st.Category,
		st.MetricAvailable,
		st.StreakDays,
		st.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert signal state: %w", execErr)
	}
	return nil
}

// GetSignalState loads the state for one trade date, nil when absent.
func (s *Store) GetSignalState(ctx context.Context, ticker string, tradeDate time.Time) (*signal.State, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, getSignalStateSQL, ticker, tradeDate)
	if queryErr != nil {
		return nil, fmt.Errorf("get signal state: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	st, scanErr := scanSignalState(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &st, nil
}

// ListRecentSignalStates lists the newest states across tickers.
func (s *Store) ListRecentSignalStates(ctx context.Context, limit int) ([]signal.State, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentSignalStatesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signal states: %w", queryErr)
	}
	defer rows.Close()

	out := make([]signal.State, 0, limit)
	for rows.Next() {
		st, scanErr := scanSignalState(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// AppendNotification inserts a record. Replaying the same ID is a no-op.
func (s *Store) AppendNotification(ctx context.Context, rec NotificationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertNotificationSQL,
		rec.ID,
		rec.Ticker,
		rec.Category,
		rec.ConditionKey,
		rec.SentAt,
		rec.Channel,
		rec.PayloadHash,
		rec.IsStrong,
	)
	if execErr != nil {
		return fmt.Errorf("append notification: %w", execErr)
	}
	return nil
}

// LastNotification returns the newest record for (ticker, condition_key), nil when absent.
func (s *Store) LastNotification(ctx context.Context, ticker, conditionKey string) (*NotificationRecord, error) {
	return s.queryOneNotification(ctx, lastNotificationSQL, ticker, conditionKey)
}

// LatestNotificationWithPrefix returns the newest record whose condition key starts with prefix.
func (s *Store) LatestNotificationWithPrefix(ctx context.Context, ticker, prefix string) (*NotificationRecord, error) {
	return s.queryOneNotification(ctx, latestNotificationWithPrefixSQL, ticker, prefix)
}

func (s *Store) queryOneNotification(ctx context.Context, query string, args ...any) (*NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var rec NotificationRecord
	scanErr := pool.QueryRow(ctx, query, args...).Scan(
		&rec.ID,
		&rec.Ticker,
		&rec.Category,
		&rec.ConditionKey,
		&rec.SentAt,
		&rec.Channel,
		&rec.PayloadHash,
		&rec.IsStrong,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("query notification: %w", scanErr)
	}
	return &rec, nil
}

// ListRecentNotifications lists the newest records across tickers.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	out := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var rec NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Ticker,
			&rec.Category,
			&rec.ConditionKey,
			&rec.SentAt,
			&rec.Channel,
			&rec.PayloadHash,
			&rec.IsStrong,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// RecordTickerRun stores the latest outcome for (ticker, trade_date).
func (s *Store) RecordTickerRun(ctx context.Context, run TickerRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertTickerRunSQL, run.Ticker, run.TradeDate, run.Status, run.Reason, run.RecordedAt); execErr != nil {
		return fmt.Errorf("record ticker run: %w", execErr)
	}
	return nil
}

// ListTickerRuns lists outcomes for a trade date.
func (s *Store) ListTickerRuns(ctx context.Context, tradeDate time.Time) ([]TickerRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listTickerRunsSQL, tradeDate)
	if queryErr != nil {
		return nil, fmt.Errorf("list ticker runs: %w", queryErr)
	}
	defer rows.Close()

	out := make([]TickerRun, 0)
	for rows.Next() {
		var run TickerRun
		if err := rows.Scan(&run.Ticker, &run.TradeDate, &run.Status, &run.Reason, &run.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanDailyMetric(rows pgx.Rows) (metrics.DailyMetric, error) {
	var (
		m                                 metrics.DailyMetric
		closePrice, eps, sales, marketCap *string
		per, psr                          *string
	)
	if err := rows.Scan(
		&m.Ticker,
		&m.TradeDate,
		&closePrice,
		&eps,
		&sales,
		&marketCap,
		&per,
		&psr,
		&m.DataSource,
		&m.FetchedAt,
	); err != nil {
		return metrics.DailyMetric{}, err
	}

	fields := []struct {
		name string
		raw  *string
		dst  *decimal.NullDecimal
	}{
		{"close_price", closePrice, &m.ClosePrice},
		{"eps_forecast", eps, &m.EPSForecast},
		{"sales_forecast", sales, &m.SalesForecast},
		{"market_cap", marketCap, &m.MarketCap},
		{"per_value", per, &m.PER},
		{"psr_value", psr, &m.PSR},
	}
	for _, f := range fields {
		v, err := parseNumeric(f.raw)
		if err != nil {
			return metrics.DailyMetric{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return m, nil
}

func scanSignalState(rows pgx.Rows) (signal.State, error) {
	var (
		st         signal.State
		metricType string
		value      *string
	)
	if err := rows.Scan(
		&st.Ticker,
		&st.TradeDate,
		&metricType,
		&value,
		&st.Under1W,
		&st.Under3M,
		&st.Under1Y,
		&st.Combo,
		&st.IsStrong,
		&st.Label,
		&st.Category,
		&st.MetricAvailable,
		&st.StreakDays,
		&st.UpdatedAt,
	); err != nil {
		return signal.State{}, err
	}
	st.MetricType = metrics.MetricType(metricType)
	v, err := parseNumeric(value)
	if err != nil {
		return signal.State{}, fmt.Errorf("parse metric value: %w", err)
	}
	st.MetricValue = v
	return st, nil
}

// numeric maps an optional decimal to a NULL-able query argument.
func numeric(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

func parseNumeric(raw *string) (decimal.NullDecimal, error) {
	if raw == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
