// Package median computes rolling medians of a ticker's valuation ratio over trading-day windows.
package median

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"valuewatcher/internal/metrics"
)

// ErrInvalidWindows is returned for empty, non-positive or out-of-order windows.
var ErrInvalidWindows = errors.New("median: invalid windows")

var two = decimal.NewFromInt(2)

// Window is a labelled number of trading days.
type Window struct {
	Label string
	Size  int
}

// DefaultWindows are 1W/3M/1Y in trading days.
func DefaultWindows() []Window {
	return []Window{{Label: "1W", Size: 5}, {Label: "3M", Size: 63}, {Label: "1Y", Size: 252}}
}

// Point is one trading day of the metric history; Value is invalid on days the metric was undefined.
type Point struct {
	TradeDate time.Time
	Value     decimal.NullDecimal
}

// Result holds one median per window, aligned with Windows.
type Result struct {
	Windows []Window
	Values  []decimal.NullDecimal
}

// Get returns the median for a window label.
func (r Result) Get(label string) decimal.NullDecimal {
	for i, w := range r.Windows {
		if w.Label == label {
			return r.Values[i]
		}
	}
	return decimal.NullDecimal{}
}

// At returns the median of the i-th window, shortest first.
func (r Result) At(i int) decimal.NullDecimal {
	if i < 0 || i >= len(r.Values) {
		return decimal.NullDecimal{}
	}
	return r.Values[i]
}

// Insufficient lists the labels whose median is undefined.
func (r Result) Insufficient() []string {
	var labels []string
	for i, w := range r.Windows {
		if !r.Values[i].Valid {
			labels = append(labels, w.Label)
		}
	}
	return labels
}

// Engine computes medians for a fixed window configuration.
type Engine struct {
	windows []Window
}

// NewEngine validates windows: at least one, sizes positive and non-decreasing.
func NewEngine(windows []Window) (*Engine, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no windows", ErrInvalidWindows)
	}
	prev := 0
	for _, w := range windows {
		if w.Size <= 0 {
			return nil, fmt.Errorf("%w: %s size %d", ErrInvalidWindows, w.Label, w.Size)
		}
		if w.Size < prev {
			return nil, fmt.Errorf("%w: %s shorter than previous window", ErrInvalidWindows, w.Label)
		}
		prev = w.Size
	}
	return &Engine{windows: append([]Window(nil), windows...)}, nil
}

// Windows returns a copy of the configured windows.
func (e *Engine) Windows() []Window {
	return append([]Window(nil), e.windows...)
}

// MaxWindow is the number of defined observations the caller must load.
func (e *Engine) MaxWindow() int {
	return e.windows[len(e.windows)-1].Size
}

// Compute derives each window's median from history ending at the evaluated trade date.
// A window takes the latest Size days on which the metric was defined; undefined or
// absent days are skipped, never filled, and fewer than Size defined values leave the
// window without a median.
func (e *Engine) Compute(history []Point) Result {
	defined := make([]Point, 0, len(history))
	for _, p := range history {
		if p.Value.Valid {
			defined = append(defined, p)
		}
	}
	sort.SliceStable(defined, func(i, j int) bool {
		return defined[i].TradeDate.Before(defined[j].TradeDate)
	})

	res := Result{Windows: e.Windows(), Values: make([]decimal.NullDecimal, len(e.windows))}
	for i, w := range e.windows {
		start := len(defined) - w.Size
		if start < 0 {
			continue
		}
		values := make([]decimal.Decimal, 0, w.Size)
		for _, p := range defined[start:] {
			values = append(values, p.Value.Decimal)
		}
		res.Values[i] = decimal.NewNullDecimal(Of(values))
	}
	return res
}

// Of returns the conventional median; the input must not be empty.
func Of(values []decimal.Decimal) decimal.Decimal {
	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(two)
}

// MetricMedian is the persisted median row for one ticker and trade date.
type MetricMedian struct {
	Ticker       string
	TradeDate    time.Time
	MetricType   metrics.MetricType
	Median1W     decimal.NullDecimal
	Median3M     decimal.NullDecimal
	Median1Y     decimal.NullDecimal
	CalculatedAt time.Time
}

// Record maps the first three windows onto the persisted 1W/3M/1Y columns.
func (r Result) Record(ticker string, tradeDate time.Time, t metrics.MetricType, at time.Time) MetricMedian {
	return MetricMedian{
		Ticker:       ticker,
		TradeDate:    tradeDate,
		MetricType:   t,
		Median1W:     r.At(0),
		Median3M:     r.At(1),
		Median1Y:     r.At(2),
		CalculatedAt: at,
	}
}
