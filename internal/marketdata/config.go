package marketdata

import (
	"fmt"

	"github.com/rs/zerolog"

	"valuewatcher/internal/config"
)

// FromConfig builds the fallback chain in the configured priority order.
func FromConfig(cfgs []config.SourceConfig, logger zerolog.Logger) (*Fallback, error) {
	sources := make([]Source, 0, len(cfgs))
	for i, c := range cfgs {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", c.Kind, i)
		}
		switch c.Kind {
		case "json":
			sources = append(sources, NewJSONSource(JSONOptions{
				Name:          name,
				BaseURL:       c.BaseURL,
				Timeout:       c.Timeout,
				RatePerSecond: c.RatePerSecond,
				Burst:         c.Burst,
			}, logger))
		case "html":
			sources = append(sources, NewHTMLSource(HTMLOptions{
				Name:          name,
				BaseURL:       c.BaseURL,
				Timeout:       c.Timeout,
				RatePerSecond: c.RatePerSecond,
				Burst:         c.Burst,
				Selectors:     c.Selectors,
			}, logger))
		default:
			return nil, fmt.Errorf("%w: unknown market data source kind %q", config.ErrInvalid, c.Kind)
		}
	}
	return NewFallback(sources, logger), nil
}
