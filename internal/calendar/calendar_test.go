package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviousSkipsWeekendAndHolidays(t *testing.T) {
	cal, err := New(time.UTC, []string{"2026-03-20"})
	require.NoError(t, err)

	monday := time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC)
	// Friday 3/20 is a holiday, so the previous trading day is Thursday.
	assert.Equal(t, time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC), cal.Previous(monday))
	assert.False(t, cal.IsTradingDay(time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC)))
}

func TestDateUsesExchangeLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	cal, err := New(tokyo, nil)
	require.NoError(t, err)

	// 2026-03-02 16:00 UTC is already 3/3 in Tokyo.
	got := cal.Date(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), got)
}

func TestRangeAndLatest(t *testing.T) {
	cal, err := New(nil, nil)
	require.NoError(t, err)

	from := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	days := cal.Range(from, to)
	require.Len(t, days, 4)
	assert.Equal(t, "2026-03-09", Format(days[2]))

	sunday := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-06", Format(cal.Latest(sunday)))
}

func TestNewRejectsBadHoliday(t *testing.T) {
	_, err := New(time.UTC, []string{"03/20/2026"})
	assert.Error(t, err)

	_, err = ParseDate("2026-3-2")
	assert.Error(t, err)
}

func TestDayKeepsDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	in := time.Date(2026, 3, 4, 23, 30, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), Day(in))
}
