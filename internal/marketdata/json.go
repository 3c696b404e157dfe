package marketdata

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"valuewatcher/internal/ticker"
)

// JSONOptions parameterise a JSON quote API source.
type JSONOptions struct {
	Name          string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// JSONSource reads GET {base}/quotes/{code}?exchange=..&date=YYYY-MM-DD.
type JSONSource struct {
	httpSource
}

var _ Source = (*JSONSource)(nil)

// NewJSONSource constructs a quote API source.
func NewJSONSource(opts JSONOptions, logger zerolog.Logger) *JSONSource {
	name := opts.Name
	if name == "" {
		name = "json"
	}
	return &JSONSource{httpSource: newHTTPSource(name, opts.BaseURL, opts.Timeout, opts.RatePerSecond, opts.Burst, logger)}
}

type quoteResponse struct {
	ClosePrice        decimal.NullDecimal `json:"close_price"`
	EPSForecast       decimal.NullDecimal `json:"eps_forecast"`
	SalesForecast     decimal.NullDecimal `json:"sales_forecast"`
	MarketCap         decimal.NullDecimal `json:"market_cap"`
	SharesOutstanding decimal.NullDecimal `json:"shares_outstanding"`
	EarningsDate      string              `json:"earnings_date"`
}

// Fetch implements Source.
func (s *JSONSource) Fetch(ctx context.Context, tk string, tradeDate time.Time) (Snapshot, error) {
	q := url.Values{}
	q.Set("exchange", ticker.Exchange(tk))
	q.Set("date", tradeDate.Format(time.DateOnly))
	endpoint := s.baseURL + "/quotes/" + url.PathEscape(ticker.Code(tk)) + "?" + q.Encode()

	payload, err := s.get(ctx, tk, endpoint, "application/json")
	if err != nil {
		return Snapshot{}, err
	}

	var res quoteResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return Snapshot{}, s.fail(tk, "decode quote: %v", err)
	}

	snap := Snapshot{
		Ticker:            tk,
		ClosePrice:        res.ClosePrice,
		EPSForecast:       res.EPSForecast,
		SalesForecast:     res.SalesForecast,
		MarketCap:         res.MarketCap,
		SharesOutstanding: res.SharesOutstanding,
		Source:            s.name,
		FetchedAt:         time.Now().UTC(),
	}
	if res.EarningsDate != "" {
		d, err := ParseDate(res.EarningsDate)
		if err != nil {
			s.logger.Warn().Str("ticker", tk).Str("raw", res.EarningsDate).Msg("unparsable earnings date")
		} else {
			snap.EarningsDate = d
		}
	}
	if snap.Empty() {
		return Snapshot{}, s.fail(tk, "quote carried no figures")
	}
	return snap, nil
}
