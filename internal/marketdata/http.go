package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"valuewatcher/internal/version"
)

const defaultTimeout = 15 * time.Second

// httpSource is the transport shared by JSON and HTML sources.
type httpSource struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func newHTTPSource(name, baseURL string, timeout time.Duration, ratePerSecond float64, burst int, logger zerolog.Logger) httpSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return httpSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With().Str("component", "market_fetcher").Str("source", name).Logger(),
	}
}

// Name implements Source.
func (h *httpSource) Name() string { return h.name }

func (h *httpSource) fail(ticker, format string, args ...any) error {
	return &FetchError{Source: h.name, Ticker: ticker, Reason: fmt.Sprintf(format, args...)}
}

// get waits for the limiter and returns a non-empty body.
func (h *httpSource) get(ctx context.Context, ticker, url, accept string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, h.fail(ticker, "rate limiter: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, h.fail(ticker, "build request (%s): %v", url, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.fail(ticker, "HTTP request error (%s): %v", url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, h.fail(ticker, "read body (%s): %v", url, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, h.fail(ticker, "%v", parseHTTPError(resp.StatusCode, payload))
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, h.fail(ticker, "empty response body (%s)", url)
	}
	h.logger.Debug().Str("ticker", ticker).Int("bytes", len(payload)).Msg("fetched")
	return payload, nil
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Description, apiErr.Message, apiErr.Error} {
			if msg != "" {
				return fmt.Errorf("HTTP status %d: %s", status, msg)
			}
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" && len(body) <= 200 && !strings.HasPrefix(body, "<") {
		return fmt.Errorf("HTTP status %d: %s", status, body)
	}
	return fmt.Errorf("HTTP status %d", status)
}
