// Package metrics derives the daily PER and PSR valuation ratios for one ticker.
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MetricType selects which valuation ratio a ticker is tracked by.
type MetricType string

const (
	PER MetricType = "PER"
	PSR MetricType = "PSR"
)

// Missing field names reported in data-unknown notifications.
const (
	FieldClosePrice        = "close_price"
	FieldEPSForecast       = "eps_forecast"
	FieldSalesForecast     = "sales_forecast"
	FieldSharesOutstanding = "shares_outstanding"
	FieldEarningsDate      = "earnings_date"
	FieldMarketData        = "market_data_source"
)

const ratioPlaces = 6

// ParseMetricType accepts PER or PSR in any case.
func ParseMetricType(raw string) (MetricType, error) {
	switch MetricType(strings.ToUpper(strings.TrimSpace(raw))) {
	case PER:
		return PER, nil
	case PSR:
		return PSR, nil
	default:
		return "", fmt.Errorf("unsupported metric type: %q", raw)
	}
}

// Input is the raw figures for one ticker and trading day.
type Input struct {
	Ticker            string
	TradeDate         time.Time
	ClosePrice        decimal.NullDecimal
	EPSForecast       decimal.NullDecimal
	SalesForecast     decimal.NullDecimal
	MarketCap         decimal.NullDecimal
	SharesOutstanding decimal.NullDecimal
	DataSource        string
	FetchedAt         time.Time
}

// DailyMetric is the persisted per-day figure set. It is immutable once written.
type DailyMetric struct {
	Ticker        string
	TradeDate     time.Time
	ClosePrice    decimal.NullDecimal
	EPSForecast   decimal.NullDecimal
	SalesForecast decimal.NullDecimal
	MarketCap     decimal.NullDecimal
	PER           decimal.NullDecimal
	PSR           decimal.NullDecimal
	DataSource    string
	FetchedAt     time.Time
}

// Calculate derives PER and PSR. Missing or non-positive inputs leave the ratio undefined.
func Calculate(in Input) DailyMetric {
	m := DailyMetric{
		Ticker:        in.Ticker,
		TradeDate:     in.TradeDate,
		ClosePrice:    positiveOrNull(in.ClosePrice),
		EPSForecast:   in.EPSForecast,
		SalesForecast: in.SalesForecast,
		DataSource:    in.DataSource,
		FetchedAt:     in.FetchedAt,
	}

	if !m.ClosePrice.Valid {
		m.MarketCap = positiveOrNull(in.MarketCap)
		return m
	}
	closePrice := m.ClosePrice.Decimal

	if isPositive(in.EPSForecast) {
		m.PER = valid(closePrice.DivRound(in.EPSForecast.Decimal, ratioPlaces))
	}

	marketCap := positiveOrNull(in.MarketCap)
	if !marketCap.Valid && isPositive(in.SharesOutstanding) {
		marketCap = valid(closePrice.Mul(in.SharesOutstanding.Decimal))
	}
	m.MarketCap = marketCap

	if isPositive(in.SalesForecast) && marketCap.Valid {
		m.PSR = valid(marketCap.Decimal.DivRound(in.SalesForecast.Decimal, ratioPlaces))
	}
	return m
}

// Value returns the active ratio for the metric type.
func (m DailyMetric) Value(t MetricType) decimal.NullDecimal {
	if t == PSR {
		return m.PSR
	}
	return m.PER
}

// MissingFields lists the inputs that kept the active ratio from being computed.
func (m DailyMetric) MissingFields(t MetricType) []string {
	var missing []string
	if !m.ClosePrice.Valid {
		missing = append(missing, FieldClosePrice)
	}
	switch t {
	case PER:
		if !isPositive(m.EPSForecast) {
			missing = append(missing, FieldEPSForecast)
		}
	case PSR:
		if !isPositive(m.SalesForecast) {
			missing = append(missing, FieldSalesForecast)
		}
		if m.ClosePrice.Valid && !m.MarketCap.Valid {
			missing = append(missing, FieldSharesOutstanding)
		}
	}
	return missing
}

func isPositive(v decimal.NullDecimal) bool {
	return v.Valid && v.Decimal.IsPositive()
}

func positiveOrNull(v decimal.NullDecimal) decimal.NullDecimal {
	if isPositive(v) {
		return v
	}
	return decimal.NullDecimal{}
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
