package signal

import (
	"time"

	"github.com/shopspring/decimal"

	"valuewatcher/internal/metrics"
)

// State is the persisted signal of one ticker and trade date. A rerun of the same date
// rewrites an identical row; the next day creates a new one.
type State struct {
	Ticker          string
	TradeDate       time.Time
	MetricType      metrics.MetricType
	MetricValue     decimal.NullDecimal
	Under1W         bool
	Under3M         bool
	Under1Y         bool
	Combo           bool
	IsStrong        bool
	Label           string
	Category        string
	MetricAvailable bool
	StreakDays      int
	UpdatedAt       time.Time
}

// AnyUnder reports whether any window flag is set.
func (s State) AnyUnder() bool {
	return s.Under1W || s.Under3M || s.Under1Y
}

// NextState derives today's state. prev is the stored state for prevTradeDate, if any;
// a state for any other date, metric type or label does not extend the streak.
func NextState(e Evaluation, prev *State, prevTradeDate time.Time, updatedAt time.Time) State {
	s := State{
		Ticker:          e.Ticker,
		TradeDate:       e.TradeDate,
		MetricType:      e.MetricType,
		MetricValue:     e.MetricValue,
		Under1W:         flag(e.Under, 0),
		Under3M:         flag(e.Under, 1),
		Under1Y:         flag(e.Under, 2),
		Combo:           e.Combo,
		IsStrong:        e.IsStrong,
		Label:           e.Label,
		Category:        e.Category,
		MetricAvailable: e.MetricAvailable,
		UpdatedAt:       updatedAt,
	}
	if !e.AnyUnder() {
		return s
	}
	s.StreakDays = 1
	if continues(prev, e, prevTradeDate) {
		s.StreakDays = prev.StreakDays + 1
	}
	return s
}

func continues(prev *State, e Evaluation, prevTradeDate time.Time) bool {
	if prev == nil || prev.StreakDays <= 0 {
		return false
	}
	if !prev.TradeDate.Equal(prevTradeDate) {
		return false
	}
	return prev.MetricType == e.MetricType && prev.Label == e.Label && prev.IsStrong == e.IsStrong
}

func flag(under []bool, i int) bool {
	return i < len(under) && under[i]
}
