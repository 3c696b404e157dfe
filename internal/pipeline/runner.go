// Package pipeline runs the daily batch: fetch, compute, evaluate, decide and dispatch per ticker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"valuewatcher/internal/alerting"
	"valuewatcher/internal/calendar"
	"valuewatcher/internal/config"
	"valuewatcher/internal/marketdata"
	"valuewatcher/internal/median"
	"valuewatcher/internal/notify"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/storage"
	"valuewatcher/internal/watchlist"
)

// EvaluationContext names the stage in data-unknown notifications.
const EvaluationContext = "日次指標計算"

// Store is the persistence a batch writes to. The notification log lives behind the decider.
type Store interface {
	storage.DailyMetricStore
	storage.MedianStore
	storage.SignalStateStore
	storage.TickerRunStore
}

// Publisher receives committed intents, e.g. the kafka publisher.
type Publisher interface {
	Publish(ctx context.Context, in notify.Intent, rec storage.NotificationRecord, text string) error
}

// Deps are the collaborators of a Runner. Publisher is optional.
type Deps struct {
	Watchlist  watchlist.Source
	Source     marketdata.Source
	Store      Store
	Decider    *notify.Decider
	Dispatcher alerting.Dispatcher
	Publisher  Publisher
	Calendar   *calendar.Calendar
}

// BatchResult counts what one batch did.
type BatchResult struct {
	TradeDate    time.Time
	Mode         watchlist.Mode
	Processed    int
	Sent         int
	Skipped      int
	Errors       int
	NotProcessed int
	LockHeld     bool
}

func (r *BatchResult) add(o tickerOutcome) {
	if o.status == storage.RunNotProcessed {
		r.NotProcessed++
		return
	}
	r.Processed++
	r.Sent += o.sent
	r.Skipped += o.skipped
	r.Errors += o.errors
}

// Runner orchestrates batches.
type Runner struct {
	watchlist  watchlist.Source
	source     marketdata.Source
	store      Store
	decider    *notify.Decider
	dispatcher alerting.Dispatcher
	publisher  Publisher
	calendar   *calendar.Calendar
	engine     *median.Engine
	evaluator  *signal.Evaluator
	logger     zerolog.Logger

	workers      int
	batchTimeout time.Duration
	locker       storage.AdvisoryLocker
	lockKey      int64
	now          func() time.Time
}

// New constructs a runner from configuration and collaborators.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) (*Runner, error) {
	if deps.Watchlist == nil || deps.Source == nil || deps.Store == nil || deps.Decider == nil || deps.Calendar == nil {
		return nil, errors.New("pipeline: watchlist, source, store, decider and calendar are required")
	}
	engine, err := median.NewEngine(Windows(cfg.Signal.Windows))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}

	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Runner{
		watchlist:    deps.Watchlist,
		source:       deps.Source,
		store:        deps.Store,
		decider:      deps.Decider,
		dispatcher:   deps.Dispatcher,
		publisher:    deps.Publisher,
		calendar:     deps.Calendar,
		engine:       engine,
		evaluator:    signal.NewEvaluator(cfg.Signal.MinOrdinaryWindows),
		logger:       logger.With().Str("component", "pipeline").Logger(),
		workers:      workers,
		batchTimeout: cfg.Pipeline.BatchTimeout,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Windows converts configured windows to engine windows, shortest first.
func Windows(w config.WindowsConfig) []median.Window {
	return []median.Window{
		{Label: w.Short.Label, Size: w.Short.Days},
		{Label: w.Medium.Label, Size: w.Medium.Days},
		{Label: w.Long.Label, Size: w.Long.Days},
	}
}

// WithClock replaces the wall clock used for record timestamps.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// RunBatch evaluates every active watchlist entry for tradeDate. Only entries whose notify
// timing matches mode dispatch notifications; all of them are evaluated and persisted.
func (r *Runner) RunBatch(ctx context.Context, tradeDate time.Time, mode watchlist.Mode) (BatchResult, error) {
	tradeDate = calendar.Day(tradeDate)
	result := BatchResult{TradeDate: tradeDate, Mode: mode}

	unlock, proceed, err := r.acquireLock(ctx)
	if err != nil {
		return result, err
	}
	if !proceed {
		r.logger.Info().Str("trade_date", calendar.Format(tradeDate)).Msg("skip batch because advisory lock held elsewhere")
		result.LockHeld = true
		return result, nil
	}
	if unlock != nil {
		defer unlock()
	}

	entries, err := r.watchlist.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list watchlist: %w", err)
	}

	batchCtx := ctx
	if r.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, r.batchTimeout)
		defer cancel()
	}
	// trace writes must land even after the deadline
	traceCtx := context.WithoutCancel(ctx)

	prevTradeDate := r.calendar.Previous(tradeDate)
	started := time.Now()
	r.logger.Info().
		Str("trade_date", calendar.Format(tradeDate)).
		Str("mode", string(mode)).
		Int("tickers", len(entries)).
		Msg("batch started")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.workers)

	notStarted := func(e watchlist.Entry, cause error) {
		r.recordRun(traceCtx, e.Ticker, tradeDate, storage.RunNotProcessed, cause.Error())
		mu.Lock()
		result.NotProcessed++
		mu.Unlock()
	}

	for _, entry := range entries {
		if err := batchCtx.Err(); err != nil {
			notStarted(entry, err)
			continue
		}
		g.Go(func() error {
			if err := batchCtx.Err(); err != nil {
				notStarted(entry, err)
				return nil
			}
			// the deadline only gates starts; a started ticker runs to completion
			outcome := r.processTicker(ctx, entry, tradeDate, prevTradeDate, mode)
			r.recordRun(traceCtx, entry.Ticker, tradeDate, outcome.status, outcome.reason)
			mu.Lock()
			result.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info().
		Str("trade_date", calendar.Format(tradeDate)).
		Int("processed", result.Processed).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Int("not_processed", result.NotProcessed).
		Dur("elapsed", time.Since(started)).
		Msg("batch finished")
	return result, nil
}

func (r *Runner) recordRun(ctx context.Context, tk string, tradeDate time.Time, status, reason string) {
	run := storage.TickerRun{Ticker: tk, TradeDate: tradeDate, Status: status, Reason: reason, RecordedAt: r.now()}
	if err := r.store.RecordTickerRun(ctx, run); err != nil {
		r.logger.Error().Err(err).Str("ticker", tk).Str("status", status).Msg("failed to record ticker run")
	}
}

func (r *Runner) acquireLock(ctx context.Context) (func(), bool, error) {
	if r.lockKey == 0 || r.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
