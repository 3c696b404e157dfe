package median

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func series(values ...float64) []Point {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{TradeDate: start.AddDate(0, 0, i), Value: decimal.NewNullDecimal(decimal.NewFromFloat(v))}
	}
	return points
}

func TestOfOddAndEven(t *testing.T) {
	odd := []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(1), decimal.NewFromInt(3)}
	assert.True(t, Of(odd).Equal(decimal.NewFromInt(3)))

	even := []decimal.Decimal{decimal.NewFromInt(4), decimal.NewFromInt(1), decimal.NewFromInt(3), decimal.NewFromInt(2)}
	assert.True(t, Of(even).Equal(decimal.RequireFromString("2.5")))
}

func TestNewEngineRejectsBadWindows(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrInvalidWindows)

	_, err = NewEngine([]Window{{Label: "1W", Size: 0}})
	assert.ErrorIs(t, err, ErrInvalidWindows)

	_, err = NewEngine([]Window{{Label: "3M", Size: 63}, {Label: "1W", Size: 5}})
	assert.ErrorIs(t, err, ErrInvalidWindows)
}

func TestComputeUsesMostRecentWindow(t *testing.T) {
	engine, err := NewEngine([]Window{{Label: "S", Size: 3}, {Label: "L", Size: 4}})
	require.NoError(t, err)

	res := engine.Compute(series(100, 1, 2, 3, 10))

	require.True(t, res.Get("S").Valid)
	assert.True(t, res.Get("S").Decimal.Equal(decimal.NewFromInt(3)))
	require.True(t, res.Get("L").Valid)
	assert.True(t, res.Get("L").Decimal.Equal(decimal.RequireFromString("2.5")))
	assert.Empty(t, res.Insufficient())
}

func TestComputeIgnoresInputOrder(t *testing.T) {
	engine, err := NewEngine([]Window{{Label: "S", Size: 2}})
	require.NoError(t, err)

	points := series(1, 2, 9)
	reversed := []Point{points[2], points[1], points[0]}

	assert.Equal(t, engine.Compute(points), engine.Compute(reversed))
}

func TestComputeSkipsMissingDaysWithoutSubstituting(t *testing.T) {
	engine, err := NewEngine([]Window{{Label: "S", Size: 3}, {Label: "L", Size: 4}})
	require.NoError(t, err)

	points := series(1, 2, 3, 4)
	points[2].Value = decimal.NullDecimal{}

	// S reaches back past the undefined day: 1, 2, 4
	res := engine.Compute(points)
	require.True(t, res.Get("S").Valid)
	assert.True(t, res.Get("S").Decimal.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, []string{"L"}, res.Insufficient())
}

func TestComputeYearWindowSurvivesOneUndefinedDay(t *testing.T) {
	engine, err := NewEngine(DefaultWindows())
	require.NoError(t, err)

	values := make([]float64, 253)
	for i := range values {
		values[i] = float64(i + 1)
	}
	points := series(values...)
	points[10].Value = decimal.NullDecimal{}

	res := engine.Compute(points)
	assert.Empty(t, res.Insufficient())
	// 252 defined values: 1..10 and 12..253
	assert.True(t, res.Get("1Y").Decimal.Equal(decimal.RequireFromString("127.5")))

	// a missing row and an undefined row count the same
	absent := append(append([]Point(nil), points[:10]...), points[11:]...)
	assert.Equal(t, res, engine.Compute(absent))
}

func TestComputeYearWindowNeedsFullHistory(t *testing.T) {
	engine, err := NewEngine(DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, 252, engine.MaxWindow())

	values := make([]float64, 251)
	for i := range values {
		values[i] = float64(i + 1)
	}
	res := engine.Compute(series(values...))
	assert.True(t, res.Get("1W").Valid)
	assert.True(t, res.Get("3M").Valid)
	assert.False(t, res.Get("1Y").Valid, "251 observations must not define the 1Y median")

	values = append(values, 252)
	res = engine.Compute(series(values...))
	require.True(t, res.Get("1Y").Valid)
	assert.True(t, res.Get("1Y").Decimal.Equal(decimal.RequireFromString("126.5")))
	assert.True(t, res.Get("1W").Decimal.Equal(decimal.NewFromInt(250)))
	assert.True(t, res.Get("3M").Decimal.Equal(decimal.NewFromInt(221)))
}

func TestComputeIsDeterministic(t *testing.T) {
	engine, err := NewEngine(DefaultWindows())
	require.NoError(t, err)

	values := make([]float64, 300)
	for i := range values {
		values[i] = float64((i*37)%101) + 0.25
	}
	points := series(values...)
	assert.Equal(t, engine.Compute(points), engine.Compute(points))
}

func TestResultRecord(t *testing.T) {
	engine, err := NewEngine([]Window{{Label: "1W", Size: 1}, {Label: "3M", Size: 2}, {Label: "1Y", Size: 3}})
	require.NoError(t, err)

	rec := engine.Compute(series(4, 6)).Record("7203:TSE", start, "PER", start)
	assert.True(t, rec.Median1W.Decimal.Equal(decimal.NewFromInt(6)))
	assert.True(t, rec.Median3M.Decimal.Equal(decimal.NewFromInt(5)))
	assert.False(t, rec.Median1Y.Valid)
}
