package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DiscordNotifier posts to a Discord webhook, retrying failed attempts.
type DiscordNotifier struct {
	webhookURL string
	retries    int
	backoff    time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

var _ Sender = (*DiscordNotifier)(nil)

// NewDiscordNotifier builds a webhook sender. retries is the number of extra attempts.
func NewDiscordNotifier(webhookURL string, retries int, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		retries:    retries,
		backoff:    500 * time.Millisecond,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Name implements Sender.
func (d *DiscordNotifier) Name() string { return "discord" }

// Send posts {"content": text}.
func (d *DiscordNotifier) Send(ctx context.Context, category, text string) error {
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff * time.Duration(attempt)):
			}
		}
		if lastErr = d.post(ctx, body); lastErr == nil {
			d.logger.Info().Str("category", category).Int("attempt", attempt+1).Msg("discord notification sent")
			return nil
		}
		d.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("discord notification attempt failed")
	}
	return fmt.Errorf("discord webhook failed after %d attempts: %w", d.retries+1, lastErr)
}

func (d *DiscordNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord status %d", resp.StatusCode)
	}
	return nil
}
