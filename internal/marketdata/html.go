package marketdata

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"valuewatcher/internal/metrics"
	"valuewatcher/internal/ticker"
)

// Selector keys beyond the metrics field names.
const (
	SelectorMarketCap = "market_cap"
)

// pages that refuse non-browser clients
var blockedMarkers = []string{
	"このブラウザではご利用いただけません",
	"Cookieをオンにしてください",
}

// HTMLOptions parameterise a scraped quote page.
type HTMLOptions struct {
	Name          string
	BaseURL       string // "{code}" and "{exchange}" are substituted, otherwise /{code} is appended
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Selectors     map[string]string
}

// HTMLSource extracts figures from a quote page with CSS selectors.
type HTMLSource struct {
	httpSource
	selectors map[string]string
}

var _ Source = (*HTMLSource)(nil)

// NewHTMLSource constructs a scraping source.
func NewHTMLSource(opts HTMLOptions, logger zerolog.Logger) *HTMLSource {
	name := opts.Name
	if name == "" {
		name = "html"
	}
	selectors := make(map[string]string, len(opts.Selectors))
	for k, v := range opts.Selectors {
		if v = strings.TrimSpace(v); v != "" {
			selectors[strings.ToLower(k)] = v
		}
	}
	return &HTMLSource{
		httpSource: newHTTPSource(name, opts.BaseURL, opts.Timeout, opts.RatePerSecond, opts.Burst, logger),
		selectors:  selectors,
	}
}

func (s *HTMLSource) pageURL(tk string) string {
	if strings.Contains(s.baseURL, "{code}") {
		return strings.NewReplacer("{code}", ticker.Code(tk), "{exchange}", ticker.Exchange(tk)).Replace(s.baseURL)
	}
	return s.baseURL + "/" + ticker.Code(tk)
}

// Fetch implements Source.
func (s *HTMLSource) Fetch(ctx context.Context, tk string, _ time.Time) (Snapshot, error) {
	page, err := s.get(ctx, tk, s.pageURL(tk), "text/html")
	if err != nil {
		return Snapshot{}, err
	}
	for _, marker := range blockedMarkers {
		if bytes.Contains(page, []byte(marker)) {
			return Snapshot{}, s.fail(tk, "サイト側でブラウザ要件によりデータ取得不可（JavaScript/Cookie制限）")
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Snapshot{}, s.fail(tk, "parse html: %v", err)
	}

	snap := Snapshot{
		Ticker:            tk,
		ClosePrice:        s.number(doc, tk, metrics.FieldClosePrice),
		EPSForecast:       s.number(doc, tk, metrics.FieldEPSForecast),
		SalesForecast:     s.number(doc, tk, metrics.FieldSalesForecast),
		MarketCap:         s.number(doc, tk, SelectorMarketCap),
		SharesOutstanding: s.number(doc, tk, metrics.FieldSharesOutstanding),
		Source:            s.name,
		FetchedAt:         time.Now().UTC(),
	}
	if raw := s.text(doc, metrics.FieldEarningsDate); raw != "" {
		if d, err := ParseDate(raw); err == nil {
			snap.EarningsDate = d
		} else {
			s.logger.Warn().Str("ticker", tk).Str("raw", raw).Msg("unparsable earnings date")
		}
	}
	if snap.Empty() {
		return Snapshot{}, s.fail(tk, "no figures matched the configured selectors")
	}
	return snap, nil
}

func (s *HTMLSource) text(doc *goquery.Document, field string) string {
	sel, ok := s.selectors[field]
	if !ok {
		return ""
	}
	return strings.TrimSpace(doc.Find(sel).First().Text())
}

func (s *HTMLSource) number(doc *goquery.Document, tk, field string) decimal.NullDecimal {
	raw := s.text(doc, field)
	if raw == "" {
		return decimal.NullDecimal{}
	}
	v, err := ParseNumber(raw)
	if err != nil {
		s.logger.Warn().Str("ticker", tk).Str("label", field).Str("raw", raw).Msg("unparsable numeric field")
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}
