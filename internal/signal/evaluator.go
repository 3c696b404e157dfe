// Package signal turns a day's metric and its rolling medians into under-median flags,
// and carries the consecutive-day streak from the prior trading day.
package signal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
)

// LabelNone is the label of a day with no window under its median.
const LabelNone = "none"

// DefaultMinOrdinaryWindows is how many windows must be under for an ordinary alert.
const DefaultMinOrdinaryWindows = 2

// Evaluation is one ticker's signal for one trade date, before streak tracking.
type Evaluation struct {
	Ticker      string
	TradeDate   time.Time
	MetricType  metrics.MetricType
	MetricValue decimal.NullDecimal
	Medians     median.Result

	// Under is aligned with Medians.Windows.
	Under           []bool
	Combo           bool
	IsStrong        bool
	Label           string
	Category        string
	MetricAvailable bool
}

// AnyUnder reports whether at least one window flag is set.
func (e Evaluation) AnyUnder() bool {
	for _, u := range e.Under {
		if u {
			return true
		}
	}
	return false
}

// HasSignal reports whether the evaluation qualifies for a valuation notification.
func (e Evaluation) HasSignal() bool {
	return e.Category != ""
}

// ConditionKey identifies the notified condition, e.g. PER:1Y+3M.
// It is empty when there is nothing to notify.
func (e Evaluation) ConditionKey() string {
	if !e.HasSignal() {
		return ""
	}
	return ConditionKey(e.MetricType, e.Label)
}

// ConditionKey builds the dedup key of a valuation condition.
func ConditionKey(t metrics.MetricType, label string) string {
	return string(t) + ":" + label
}

// Evaluator compares a metric with its window medians.
type Evaluator struct {
	minOrdinary int
}

// NewEvaluator returns an evaluator requiring minOrdinary under-windows for an ordinary category.
// Values below 1 fall back to the default.
func NewEvaluator(minOrdinary int) *Evaluator {
	if minOrdinary < 1 {
		minOrdinary = DefaultMinOrdinaryWindows
	}
	return &Evaluator{minOrdinary: minOrdinary}
}

// Evaluate flags every window whose median is defined and above the current value.
// An undefined value never counts as under; it marks the metric unavailable instead.
func (ev *Evaluator) Evaluate(ticker string, tradeDate time.Time, t metrics.MetricType, value decimal.NullDecimal, medians median.Result) Evaluation {
	e := Evaluation{
		Ticker:          ticker,
		TradeDate:       tradeDate,
		MetricType:      t,
		MetricValue:     value,
		Medians:         medians,
		Under:           make([]bool, len(medians.Windows)),
		Label:           LabelNone,
		MetricAvailable: value.Valid,
	}
	if !value.Valid {
		return e
	}

	count := 0
	for i := range medians.Windows {
		m := medians.At(i)
		if m.Valid && value.Decimal.LessThan(m.Decimal) {
			e.Under[i] = true
			count++
		}
	}

	e.Combo = count > 0 && count == len(e.Under)
	e.IsStrong = e.Combo
	e.Label = label(medians.Windows, e.Under)

	switch {
	case e.IsStrong:
		e.Category = StrongCategory(t)
	case count >= ev.minOrdinary:
		e.Category = OrdinaryCategory(t)
	}
	return e
}

// StrongCategory is the category for every window under, e.g. 超PER割安.
func StrongCategory(t metrics.MetricType) string {
	return "超" + string(t) + "割安"
}

// OrdinaryCategory is the category for a partial match, e.g. PER割安.
func OrdinaryCategory(t metrics.MetricType) string {
	return string(t) + "割安"
}

// label lists the under windows longest first: 1Y+3M+1W.
func label(windows []median.Window, under []bool) string {
	var parts []string
	for i := len(windows) - 1; i >= 0; i-- {
		if under[i] {
			parts = append(parts, windows[i].Label)
		}
	}
	if len(parts) == 0 {
		return LabelNone
	}
	return strings.Join(parts, "+")
}
