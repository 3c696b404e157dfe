package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
)

func nd(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func medians(w1, m3, y1 decimal.NullDecimal) median.Result {
	return median.Result{Windows: median.DefaultWindows(), Values: []decimal.NullDecimal{w1, m3, y1}}
}

var d1 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday

func TestEvaluateStrongWhenAllWindowsUnder(t *testing.T) {
	ev := NewEvaluator(2)
	e := ev.Evaluate("7203:TSE", d1, metrics.PER, nd(10), medians(nd(11), nd(12), nd(13)))

	assert.Equal(t, []bool{true, true, true}, e.Under)
	assert.True(t, e.Combo)
	assert.True(t, e.IsStrong)
	assert.Equal(t, "1Y+3M+1W", e.Label)
	assert.Equal(t, "超PER割安", e.Category)
	assert.Equal(t, "PER:1Y+3M+1W", e.ConditionKey())
}

func TestEvaluateOrdinaryNeedsTwoWindows(t *testing.T) {
	ev := NewEvaluator(2)

	e := ev.Evaluate("7203:TSE", d1, metrics.PSR, nd(1), medians(nd(0.5), nd(2), nd(3)))
	assert.False(t, e.IsStrong)
	assert.Equal(t, "1Y+3M", e.Label)
	assert.Equal(t, "PSR割安", e.Category)
	assert.Equal(t, "PSR:1Y+3M", e.ConditionKey())

	e = ev.Evaluate("7203:TSE", d1, metrics.PER, nd(10), medians(nd(11), nd(9), nd(9)))
	assert.True(t, e.AnyUnder())
	assert.Equal(t, "1W", e.Label)
	assert.False(t, e.HasSignal())
	assert.Empty(t, e.ConditionKey())
}

func TestEvaluateUndefinedMedianIsNotUnder(t *testing.T) {
	ev := NewEvaluator(2)
	e := ev.Evaluate("7203:TSE", d1, metrics.PER, nd(10), medians(nd(11), nd(12), decimal.NullDecimal{}))

	assert.Equal(t, []bool{true, true, false}, e.Under)
	assert.False(t, e.Combo)
	assert.False(t, e.IsStrong)
	assert.Equal(t, "3M+1W", e.Label)
	assert.Equal(t, "PER割安", e.Category)
}

func TestEvaluateEqualValueIsNotUnder(t *testing.T) {
	ev := NewEvaluator(2)
	e := ev.Evaluate("7203:TSE", d1, metrics.PER, nd(10), medians(nd(10), nd(10), nd(10)))
	assert.False(t, e.AnyUnder())
	assert.Equal(t, LabelNone, e.Label)
}

func TestEvaluateMetricUnavailable(t *testing.T) {
	ev := NewEvaluator(2)
	e := ev.Evaluate("9999:TSE", d1, metrics.PER, decimal.NullDecimal{}, medians(nd(11), nd(12), nd(13)))

	assert.False(t, e.MetricAvailable)
	assert.Equal(t, []bool{false, false, false}, e.Under)
	assert.False(t, e.IsStrong)
	assert.False(t, e.HasSignal())
}

func TestStrongIffAllWindowsUnder(t *testing.T) {
	ev := NewEvaluator(1)
	values := []decimal.NullDecimal{{}, nd(5), nd(10), nd(15)}
	for _, w := range values {
		for _, m := range values {
			for _, y := range values {
				e := ev.Evaluate("7203:TSE", d1, metrics.PER, nd(10), medians(w, m, y))
				s := NextState(e, nil, d1.AddDate(0, 0, -3), d1)
				assert.Equal(t, s.Under1W && s.Under3M && s.Under1Y, s.IsStrong)
				assert.Equal(t, s.IsStrong, s.Combo)
			}
		}
	}
}

func TestStreakContinuityScenario(t *testing.T) {
	ev := NewEvaluator(2)
	days := []time.Time{d1, d1.AddDate(0, 0, 1), d1.AddDate(0, 0, 2), d1.AddDate(0, 0, 3)}
	only1W := medians(nd(11), nd(9), nd(9))

	var prev *State
	var streaks []int
	for i, day := range days[:3] {
		e := ev.Evaluate("1234:TSE", day, metrics.PER, nd(10), only1W)
		prevDay := day.AddDate(0, 0, -1)
		if i == 0 {
			prevDay = d1.AddDate(0, 0, -3)
		}
		s := NextState(e, prev, prevDay, day)
		streaks = append(streaks, s.StreakDays)
		prev = &s
	}
	assert.Equal(t, []int{1, 2, 3}, streaks)

	e := ev.Evaluate("1234:TSE", days[3], metrics.PER, nd(12), only1W)
	s := NextState(e, prev, days[2], days[3])
	assert.False(t, s.Under1W)
	assert.Equal(t, 0, s.StreakDays)
}

func TestStreakResetsOnLabelChange(t *testing.T) {
	ev := NewEvaluator(2)
	prev := NextState(ev.Evaluate("1234:TSE", d1, metrics.PER, nd(10), medians(nd(11), nd(12), nd(9))), nil, d1.AddDate(0, 0, -3), d1)
	prev.StreakDays = 4

	next := d1.AddDate(0, 0, 1)
	s := NextState(ev.Evaluate("1234:TSE", next, metrics.PER, nd(10), medians(nd(11), nd(12), nd(13))), &prev, d1, next)
	assert.Equal(t, "1Y+3M+1W", s.Label)
	assert.Equal(t, 1, s.StreakDays)
}

func TestStreakResetsOnMetricTypeSwitch(t *testing.T) {
	ev := NewEvaluator(2)
	m := medians(nd(11), nd(12), nd(13))
	prev := NextState(ev.Evaluate("1234:TSE", d1, metrics.PER, nd(10), m), nil, d1.AddDate(0, 0, -3), d1)

	next := d1.AddDate(0, 0, 1)
	s := NextState(ev.Evaluate("1234:TSE", next, metrics.PSR, nd(10), m), &prev, d1, next)
	assert.Equal(t, 1, s.StreakDays)
}

func TestStreakIgnoresStaleState(t *testing.T) {
	ev := NewEvaluator(2)
	m := medians(nd(11), nd(12), nd(13))
	prev := NextState(ev.Evaluate("1234:TSE", d1, metrics.PER, nd(10), m), nil, d1.AddDate(0, 0, -3), d1)

	later := d1.AddDate(0, 0, 2)
	s := NextState(ev.Evaluate("1234:TSE", later, metrics.PER, nd(10), m), &prev, d1.AddDate(0, 0, 1), later)
	assert.Equal(t, 1, s.StreakDays)
}

func TestNextStateIsIdempotentOnRerun(t *testing.T) {
	ev := NewEvaluator(2)
	m := medians(nd(11), nd(12), nd(13))
	prev := NextState(ev.Evaluate("1234:TSE", d1, metrics.PER, nd(10), m), nil, d1.AddDate(0, 0, -3), d1)

	next := d1.AddDate(0, 0, 1)
	at := next.Add(18 * time.Hour)
	first := NextState(ev.Evaluate("1234:TSE", next, metrics.PER, nd(10), m), &prev, d1, at)
	second := NextState(ev.Evaluate("1234:TSE", next, metrics.PER, nd(10), m), &prev, d1, at)

	require.Equal(t, 2, first.StreakDays)
	assert.Equal(t, first, second)
}
