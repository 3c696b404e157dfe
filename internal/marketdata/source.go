// Package marketdata fetches the raw figures a daily metric is computed from.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"valuewatcher/internal/metrics"
)

// ErrUnavailable is returned when no source could serve a ticker.
var ErrUnavailable = errors.New("market data unavailable")

// Snapshot is one source's view of a ticker on a trading day.
type Snapshot struct {
	Ticker            string
	ClosePrice        decimal.NullDecimal
	EPSForecast       decimal.NullDecimal
	SalesForecast     decimal.NullDecimal
	MarketCap         decimal.NullDecimal
	SharesOutstanding decimal.NullDecimal
	EarningsDate      time.Time
	Source            string
	FetchedAt         time.Time
}

// MissingFields lists the figures the snapshot could not provide.
func (s Snapshot) MissingFields() []string {
	var fields []string
	if !s.ClosePrice.Valid {
		fields = append(fields, metrics.FieldClosePrice)
	}
	if !s.EPSForecast.Valid {
		fields = append(fields, metrics.FieldEPSForecast)
	}
	if !s.SalesForecast.Valid {
		fields = append(fields, metrics.FieldSalesForecast)
	}
	if s.EarningsDate.IsZero() {
		fields = append(fields, metrics.FieldEarningsDate)
	}
	return fields
}

// Empty reports whether no figure at all was found.
func (s Snapshot) Empty() bool {
	return !s.ClosePrice.Valid && !s.EPSForecast.Valid && !s.SalesForecast.Valid &&
		!s.MarketCap.Valid && !s.SharesOutstanding.Valid && s.EarningsDate.IsZero()
}

// Input converts the snapshot for metrics.Calculate.
func (s Snapshot) Input(tradeDate time.Time) metrics.Input {
	return metrics.Input{
		Ticker:            s.Ticker,
		TradeDate:         tradeDate,
		ClosePrice:        s.ClosePrice,
		EPSForecast:       s.EPSForecast,
		SalesForecast:     s.SalesForecast,
		MarketCap:         s.MarketCap,
		SharesOutstanding: s.SharesOutstanding,
		DataSource:        s.Source,
		FetchedAt:         s.FetchedAt,
	}
}

// merge fills the gaps of s from other and reports whether anything was taken.
func (s *Snapshot) merge(other Snapshot) bool {
	took := false
	fill := func(dst *decimal.NullDecimal, src decimal.NullDecimal) {
		if !dst.Valid && src.Valid {
			*dst = src
			took = true
		}
	}
	fill(&s.ClosePrice, other.ClosePrice)
	fill(&s.EPSForecast, other.EPSForecast)
	fill(&s.SalesForecast, other.SalesForecast)
	fill(&s.MarketCap, other.MarketCap)
	fill(&s.SharesOutstanding, other.SharesOutstanding)
	if s.EarningsDate.IsZero() && !other.EarningsDate.IsZero() {
		s.EarningsDate = other.EarningsDate
		took = true
	}
	return took
}

// Source fetches one ticker's figures.
type Source interface {
	Name() string
	Fetch(ctx context.Context, ticker string, tradeDate time.Time) (Snapshot, error)
}

// FetchError describes one source failing for one ticker.
type FetchError struct {
	Source string
	Ticker string
	Reason string
}

func (e *FetchError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("%s failed for %s: %s", e.Source, e.Ticker, reason)
}

// Fallback tries sources in priority order. The first usable snapshot wins and later
// sources only fill the fields it lacks.
type Fallback struct {
	sources []Source
	logger  zerolog.Logger
}

var _ Source = (*Fallback)(nil)

// NewFallback chains sources, highest priority first.
func NewFallback(sources []Source, logger zerolog.Logger) *Fallback {
	return &Fallback{
		sources: append([]Source(nil), sources...),
		logger:  logger.With().Str("component", "marketdata").Logger(),
	}
}

// Name implements Source.
func (f *Fallback) Name() string { return "fallback" }

// Fetch returns ErrUnavailable, wrapped with every source's reason, when nothing was found.
func (f *Fallback) Fetch(ctx context.Context, ticker string, tradeDate time.Time) (Snapshot, error) {
	if len(f.sources) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s: source list is empty", ErrUnavailable, ticker)
	}

	var (
		result  Snapshot
		found   bool
		used    []string
		reasons []string
	)
	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		snap, err := src.Fetch(ctx, ticker, tradeDate)
		if err != nil {
			f.logger.Warn().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("market data source failed")
			reasons = append(reasons, err.Error())
			continue
		}
		if !found {
			result, found = snap, true
			used = append(used, src.Name())
		} else if result.merge(snap) {
			used = append(used, src.Name())
		}
		if len(result.MissingFields()) == 0 {
			break
		}
	}

	if !found {
		return Snapshot{}, fmt.Errorf("%w: %s: %s", ErrUnavailable, ticker, strings.Join(reasons, "; "))
	}
	result.Ticker = ticker
	result.Source = strings.Join(used, "+")
	return result, nil
}
