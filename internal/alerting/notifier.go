package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Watchlist notify channels.
const (
	ChannelDiscord  = "DISCORD"
	ChannelTelegram = "TELEGRAM"
	ChannelBoth     = "BOTH"
	ChannelOff      = "OFF"
)

// ErrNoTransport is returned when a channel has no configured sender.
var ErrNoTransport = errors.New("alerting: no transport for channel")

// Dispatcher 定义告警输送接口。
type Dispatcher interface {
	Send(ctx context.Context, channel, category, text string) error
}

// Sender delivers rendered text over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, category, text string) error
}

// Router fans a notify channel out to its transports. BOTH means every transport.
type Router struct {
	senders  map[string]Sender
	fallback Sender
	logger   zerolog.Logger
}

var _ Dispatcher = (*Router)(nil)

// NewRouter maps channels to senders. fallback, if set, serves channels without a sender.
func NewRouter(senders map[string]Sender, fallback Sender, logger zerolog.Logger) *Router {
	copied := make(map[string]Sender, len(senders))
	for channel, s := range senders {
		if s != nil {
			copied[strings.ToUpper(channel)] = s
		}
	}
	return &Router{
		senders:  copied,
		fallback: fallback,
		logger:   logger.With().Str("component", "alert_router").Logger(),
	}
}

// Send delivers to each transport of the channel and joins their errors.
func (r *Router) Send(ctx context.Context, channel, category, text string) error {
	var targets []string
	switch channel = strings.ToUpper(channel); channel {
	case ChannelOff:
		return nil
	case ChannelBoth:
		targets = []string{ChannelDiscord, ChannelTelegram}
	default:
		targets = []string{channel}
	}

	var errs []error
	for _, target := range targets {
		sender, ok := r.senders[target]
		if !ok {
			sender = r.fallback
		}
		if sender == nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoTransport, target))
			continue
		}
		if err := sender.Send(ctx, category, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sender.Name(), err))
			continue
		}
		r.logger.Debug().Str("channel", target).Str("transport", sender.Name()).Str("category", category).Msg("dispatched")
	}
	return errors.Join(errs...)
}

// LogSender writes notifications to the log instead of a chat channel.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender returns a sender for dry runs and disabled alerting.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Name implements Sender.
func (l *LogSender) Name() string { return "log" }

// Send implements Sender.
func (l *LogSender) Send(_ context.Context, category, text string) error {
	l.logger.Info().Str("category", category).Str("text", text).Msg("notification")
	return nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

var _ Sender = (*TelegramNotifier)(nil)

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Name implements Sender.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Send 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Send(ctx context.Context, category, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("category", category).Msg("telegram notification sent")
	return nil
}
