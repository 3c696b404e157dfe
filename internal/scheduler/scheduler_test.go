package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/watchlist"
)

type call struct {
	day  time.Time
	mode watchlist.Mode
}

func newTestScheduler(t *testing.T, opts Options, now time.Time) *Scheduler {
	t.Helper()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	cal, err := calendar.New(tokyo, []string{"2026-03-20"})
	require.NoError(t, err)
	s, err := New(opts, cal, zerolog.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestRunOnStartUsesExchangeDate(t *testing.T) {
	// 2026-03-02 23:00 UTC is Tuesday 3/3 in Tokyo.
	s := newTestScheduler(t, Options{DailyCron: "0 18 1 1 *", RunOnStart: true}, time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC))

	calls := make(chan call, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, day time.Time, mode watchlist.Mode) error {
			calls <- call{day, mode}
			return errors.New("ignored")
		})
	}()

	select {
	case c := <-calls:
		assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), c.day)
		assert.Equal(t, watchlist.ModeAll, c.mode)
	case <-time.After(2 * time.Second):
		t.Fatal("run_on_start batch did not fire")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestFireSkipsHolidays(t *testing.T) {
	s := newTestScheduler(t, Options{DailyCron: "0 18 * * 1-5"}, time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC))
	var logs bytes.Buffer
	s.logger = zerolog.New(&logs)
	called := false
	s.fire(context.Background(), func(context.Context, time.Time, watchlist.Mode) error {
		called = true
		return nil
	}, watchlist.ModeDaily)
	assert.False(t, called)
	assert.Contains(t, logs.String(), `"message":"skip batch on non-trading day"`)
	assert.Contains(t, logs.String(), `"trade_date":"2026-03-20"`)

	s.now = func() time.Time { return time.Date(2026, 3, 21, 1, 0, 0, 0, time.UTC) }
	s.fire(context.Background(), func(context.Context, time.Time, watchlist.Mode) error {
		called = true
		return nil
	}, watchlist.ModeDaily)
	assert.False(t, called, "saturday must be skipped")
}

func TestRunRejectsBadCron(t *testing.T) {
	s := newTestScheduler(t, Options{At21Cron: "not a cron"}, time.Now())
	err := s.Run(context.Background(), func(context.Context, time.Time, watchlist.Mode) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AT_21")
}

func TestNewRequiresSlots(t *testing.T) {
	cal, err := calendar.New(nil, nil)
	require.NoError(t, err)
	_, err = New(Options{}, cal, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(Options{DailyCron: "0 18 * * *"}, nil, zerolog.Nop())
	assert.Error(t, err)
}
