package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/storage"
	"valuewatcher/internal/watchlist"
)

// RebuildOptions select the range recomputed from stored daily metrics.
type RebuildOptions struct {
	From    time.Time
	To      time.Time
	Tickers []string
	DryRun  bool
}

// RebuildResult counts what a rebuild touched.
type RebuildResult struct {
	Tickers int
	Days    int
	Missing int
	Signals int
}

// Rebuild recomputes medians and signal states for every trading day in the range without
// fetching or notifying. Streaks chain from the state stored for the day before From.
func (r *Runner) Rebuild(ctx context.Context, opts RebuildOptions) (RebuildResult, error) {
	from, to := calendar.Day(opts.From), calendar.Day(opts.To)
	if to.Before(from) {
		return RebuildResult{}, fmt.Errorf("rebuild range is empty: %s > %s", calendar.Format(from), calendar.Format(to))
	}

	entries, err := r.watchlist.ListActive(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("list watchlist: %w", err)
	}
	entries = filterTickers(entries, opts.Tickers)
	days := r.calendar.Range(from, to)

	var res RebuildResult
	for _, e := range entries {
		res.Tickers++
		prev, err := r.store.GetSignalState(ctx, e.Ticker, r.calendar.Previous(from))
		if err != nil {
			return res, fmt.Errorf("load state before %s for %s: %w", calendar.Format(from), e.Ticker, err)
		}
		for _, day := range days {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			medians, state, err := r.evaluateStored(ctx, e.Ticker, e.MetricType, day, prev)
			if errors.Is(err, storage.ErrNotFound) {
				res.Missing++
				prev = nil
				continue
			}
			if err != nil {
				return res, fmt.Errorf("rebuild %s %s: %w", e.Ticker, calendar.Format(day), err)
			}
			res.Days++
			if state.Category != "" {
				res.Signals++
			}
			if !opts.DryRun {
				if err := r.store.UpsertMedian(ctx, medians.Record(e.Ticker, day, e.MetricType, r.now())); err != nil {
					return res, fmt.Errorf("store medians: %w", err)
				}
				if err := r.store.UpsertSignalState(ctx, state); err != nil {
					return res, fmt.Errorf("store signal state: %w", err)
				}
			}
			r.logger.Debug().
				Str("ticker", e.Ticker).
				Str("trade_date", calendar.Format(day)).
				Str("label", state.Label).
				Int("streak_days", state.StreakDays).
				Bool("dry_run", opts.DryRun).
				Msg("rebuilt")
			prev = stateRef(state)
		}
	}

	r.logger.Info().
		Int("tickers", res.Tickers).
		Int("days", res.Days).
		Int("missing", res.Missing).
		Int("signals", res.Signals).
		Bool("dry_run", opts.DryRun).
		Msg("rebuild finished")
	return res, nil
}

func stateRef(s signal.State) *signal.State { return &s }

func filterTickers(entries []watchlist.Entry, tickers []string) []watchlist.Entry {
	if len(tickers) == 0 {
		return entries
	}
	want := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		want[t] = struct{}{}
	}
	out := make([]watchlist.Entry, 0, len(tickers))
	for _, e := range entries {
		if _, ok := want[e.Ticker]; ok {
			out = append(out, e)
		}
	}
	return out
}
