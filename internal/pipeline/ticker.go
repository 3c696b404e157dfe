package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/notify"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/storage"
	"valuewatcher/internal/watchlist"
)

type tickerOutcome struct {
	status  string
	reason  string
	sent    int
	skipped int
	errors  int
}

// processTicker runs one ticker's chain. It never returns an error: every failure is
// logged, counted and reflected in the outcome status.
func (r *Runner) processTicker(ctx context.Context, e watchlist.Entry, tradeDate, prevTradeDate time.Time, mode watchlist.Mode) tickerOutcome {
	log := r.logger.With().Str("ticker", e.Ticker).Str("trade_date", calendar.Format(tradeDate)).Logger()
	out := tickerOutcome{status: storage.RunCompleted}

	dm, missing, unknownNote, err := r.dailyMetric(ctx, log, e, tradeDate)
	switch {
	case errors.Is(err, errInterrupted):
		out.status, out.reason = storage.RunNotProcessed, ctx.Err().Error()
		return out
	case errors.Is(err, errPersist):
		return r.persistFailed(log, out, "daily metric", err)
	case err != nil:
		out.status, out.reason = storage.RunFailed, err.Error()
		out.errors++
	}

	history, err := r.store.MetricHistory(ctx, e.Ticker, e.MetricType, tradeDate, r.engine.MaxWindow())
	if err != nil {
		return r.persistFailed(log, out, "metric history", err)
	}
	medians := r.engine.Compute(history)
	now := r.now()
	if err := r.store.UpsertMedian(ctx, medians.Record(e.Ticker, tradeDate, e.MetricType, now)); err != nil {
		return r.persistFailed(log, out, "medians", err)
	}
	if gaps := medians.Insufficient(); len(gaps) > 0 {
		log.Debug().Strs("windows", gaps).Int("history", len(history)).Msg("median windows undefined")
	}

	ev := r.evaluator.Evaluate(e.Ticker, tradeDate, e.MetricType, dm.Value(e.MetricType), medians)
	prev, err := r.store.GetSignalState(ctx, e.Ticker, prevTradeDate)
	if err != nil {
		return r.persistFailed(log, out, "previous signal state", err)
	}
	state := signal.NextState(ev, prev, prevTradeDate, now)
	if err := r.store.UpsertSignalState(ctx, state); err != nil {
		return r.persistFailed(log, out, "signal state", err)
	}

	log.Info().
		Str("metric_type", string(e.MetricType)).
		Str("label", state.Label).
		Str("category", state.Category).
		Int("streak_days", state.StreakDays).
		Bool("metric_available", state.MetricAvailable).
		Msg("ticker evaluated")

	var intents []notify.Intent
	if len(missing) > 0 {
		log.Warn().Strs("missing_fields", missing).Msg("missing fundamental data")
		intents = append(intents, notify.DataUnknownIntent(e.Ticker, e.Name, e.NotifyChannel, tradeDate, e.MetricType, missing, unknownNote))
	}
	if in, ok := notify.SignalIntent(e.Name, e.NotifyChannel, state, medians); ok {
		intents = append(intents, in)
	}
	if !e.DispatchesIn(mode) {
		if len(intents) > 0 {
			log.Debug().Str("mode", string(mode)).Str("timing", e.NotifyTiming).Str("channel", e.NotifyChannel).Msg("notifications not due in this mode")
		}
		return out
	}

	for _, in := range intents {
		r.notify(ctx, log, in, &out)
	}
	return out
}

var (
	errInterrupted = errors.New("interrupted")
	errPersist     = errors.New("persist")
)

// dailyMetric returns the trade date's metric row. A stored row is never replaced: later
// batches for the same date evaluate it and only consult the source for the earnings date.
// When no row exists and every source fails, nothing is written and the error carries the
// reason; the metric is then undefined for the day.
func (r *Runner) dailyMetric(ctx context.Context, log zerolog.Logger, e watchlist.Entry, tradeDate time.Time) (metrics.DailyMetric, []string, string, error) {
	stored, err := r.store.GetDailyMetric(ctx, e.Ticker, tradeDate)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
	default:
		return metrics.DailyMetric{}, nil, "", fmt.Errorf("%w: %v", errPersist, err)
	}
	haveStored := err == nil

	snap, fetchErr := r.source.Fetch(ctx, e.Ticker, tradeDate)
	if fetchErr != nil && ctx.Err() != nil {
		log.Warn().Err(fetchErr).Msg("ticker interrupted before evaluation")
		return metrics.DailyMetric{}, nil, "", errInterrupted
	}

	if haveStored {
		missing := stored.MissingFields(e.MetricType)
		if fetchErr != nil {
			log.Warn().Err(fetchErr).Msg("market data refetch failed, keeping stored metric")
		} else if snap.EarningsDate.IsZero() {
			missing = append(missing, metrics.FieldEarningsDate)
		}
		return stored, missing, EvaluationContext, nil
	}

	if fetchErr != nil {
		log.Error().Err(fetchErr).Msg("market data unavailable")
		dm := metrics.DailyMetric{Ticker: e.Ticker, TradeDate: tradeDate}
		return dm, []string{metrics.FieldMarketData}, fetchErr.Error(), fetchErr
	}

	dm := metrics.Calculate(snap.Input(tradeDate))
	missing := dm.MissingFields(e.MetricType)
	if snap.EarningsDate.IsZero() {
		missing = append(missing, metrics.FieldEarningsDate)
	}
	if err := r.store.UpsertDailyMetric(ctx, dm); err != nil {
		return metrics.DailyMetric{}, nil, "", fmt.Errorf("%w: %v", errPersist, err)
	}
	return dm, missing, EvaluationContext, nil
}

func (r *Runner) persistFailed(log zerolog.Logger, out tickerOutcome, stage string, err error) tickerOutcome {
	log.Error().Err(err).Str("stage", stage).Msg("persistence failure, skipping downstream stages")
	out.status, out.reason = storage.RunPersistFailed, stage+": "+err.Error()
	out.errors++
	return out
}

// notify decides, commits and dispatches one intent. The record is appended before dispatch.
func (r *Runner) notify(ctx context.Context, log zerolog.Logger, in notify.Intent, out *tickerOutcome) {
	log = log.With().Str("condition_key", in.ConditionKey).Logger()

	dec, err := r.decider.Decide(ctx, in)
	if err != nil {
		log.Error().Err(err).Msg("notification decision failed")
		out.errors++
		return
	}
	if !dec.Send {
		log.Info().Str("reason", dec.Reason).Msg("notification suppressed")
		out.skipped++
		return
	}

	rec, err := r.decider.Commit(ctx, dec)
	if err != nil {
		log.Error().Err(err).Msg("failed to append notification record, not dispatching")
		out.status, out.reason = storage.RunPersistFailed, err.Error()
		out.errors++
		return
	}

	if r.dispatcher != nil {
		if err := r.dispatcher.Send(ctx, in.Channel, in.Category, dec.Text); err != nil {
			log.Error().Err(err).Str("alert", "dispatch_failure").Str("record_id", rec.ID).Msg("failed to dispatch notification")
			out.errors++
			r.publish(ctx, log, in, rec, dec.Text)
			return
		}
	}
	out.sent++
	log.Info().Str("reason", dec.Reason).Str("category", in.Category).Str("record_id", rec.ID).Msg("notification sent")
	r.publish(ctx, log, in, rec, dec.Text)
}

func (r *Runner) publish(ctx context.Context, log zerolog.Logger, in notify.Intent, rec storage.NotificationRecord, text string) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, in, rec, text); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("failed to publish intent")
	}
}

// evaluateStored recomputes medians and state for a date from stored metrics only.
func (r *Runner) evaluateStored(ctx context.Context, tk string, t metrics.MetricType, day time.Time, prev *signal.State) (median.Result, signal.State, error) {
	dm, err := r.store.GetDailyMetric(ctx, tk, day)
	if err != nil {
		return median.Result{}, signal.State{}, err
	}
	history, err := r.store.MetricHistory(ctx, tk, t, day, r.engine.MaxWindow())
	if err != nil {
		return median.Result{}, signal.State{}, err
	}
	medians := r.engine.Compute(history)
	ev := r.evaluator.Evaluate(tk, day, t, dm.Value(t), medians)
	return medians, signal.NextState(ev, prev, r.calendar.Previous(day), r.now()), nil
}
