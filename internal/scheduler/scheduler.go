package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/watchlist"
)

// BatchFunc runs one batch for a trade date in the given mode.
type BatchFunc func(ctx context.Context, tradeDate time.Time, mode watchlist.Mode) error

// Options tune scheduler behaviour. An empty cron expression disables that slot.
type Options struct {
	DailyCron  string
	At21Cron   string
	RunOnStart bool
}

// Scheduler fires batches on cron expressions evaluated in the exchange time zone.
type Scheduler struct {
	opts     Options
	calendar *calendar.Calendar
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, cal *calendar.Calendar, logger zerolog.Logger) (*Scheduler, error) {
	if cal == nil {
		return nil, errors.New("scheduler: calendar is required")
	}
	if opts.DailyCron == "" && opts.At21Cron == "" {
		return nil, errors.New("scheduler: no cron expression configured")
	}
	return &Scheduler{
		opts:     opts,
		calendar: cal,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}, nil
}

// Run registers the slots and blocks until ctx is cancelled. Overlapping fires of the same
// slot are skipped while the previous one is still running.
func (s *Scheduler) Run(ctx context.Context, fn BatchFunc) error {
	c := cron.New(
		cron.WithLocation(s.calendar.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)

	slots := []struct {
		spec string
		mode watchlist.Mode
	}{
		{s.opts.DailyCron, watchlist.ModeDaily},
		{s.opts.At21Cron, watchlist.ModeAt21},
	}
	for _, slot := range slots {
		if slot.spec == "" {
			continue
		}
		mode := slot.mode
		if _, err := c.AddFunc(slot.spec, func() { s.fire(ctx, fn, mode) }); err != nil {
			return fmt.Errorf("schedule %s batch %q: %w", mode, slot.spec, err)
		}
		s.logger.Info().Str("mode", string(mode)).Str("cron", slot.spec).Msg("batch scheduled")
	}

	if s.opts.RunOnStart {
		s.fire(ctx, fn, watchlist.ModeAll)
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) fire(ctx context.Context, fn BatchFunc, mode watchlist.Mode) {
	if ctx.Err() != nil {
		return
	}
	tradeDate := s.calendar.Date(s.now())
	if !s.calendar.IsTradingDay(tradeDate) {
		s.logger.Info().Str("trade_date", calendar.Format(tradeDate)).Str("mode", string(mode)).Msg("skip batch on non-trading day")
		return
	}
	s.logger.Info().Str("trade_date", calendar.Format(tradeDate)).Str("mode", string(mode)).Msg("executing scheduled batch")
	if err := fn(ctx, tradeDate, mode); err != nil {
		s.logger.Error().Err(err).Str("trade_date", calendar.Format(tradeDate)).Str("mode", string(mode)).Msg("batch execution failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
