package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"valuewatcher/internal/notify"
	"valuewatcher/internal/storage"
)

// IntentEvent is the kafka payload for one committed notification.
type IntentEvent struct {
	ID            string            `json:"id"`
	Ticker        string            `json:"ticker"`
	Name          string            `json:"name,omitempty"`
	TradeDate     string            `json:"trade_date"`
	Category      string            `json:"category"`
	ConditionKey  string            `json:"condition_key"`
	IsStrong      bool              `json:"is_strong"`
	StreakDays    int               `json:"streak_days"`
	Label         string            `json:"label,omitempty"`
	MetricType    string            `json:"metric_type"`
	MetricValue   *string           `json:"metric_value"`
	Medians       map[string]string `json:"medians,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	Channel       string            `json:"channel"`
	PayloadHash   string            `json:"payload_hash"`
	SentAt        time.Time         `json:"sent_at"`
	Text          string            `json:"text"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IntentPublisher hands notification intents to external formatters over kafka.
type IntentPublisher struct {
	writer messageWriter
}

// NewIntentPublisher creates a publisher for topic.
func NewIntentPublisher(brokers []string, topic string) *IntentPublisher {
	return &IntentPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// Publish writes the event keyed by ticker, so one ticker's intents stay ordered.
func (p *IntentPublisher) Publish(ctx context.Context, in notify.Intent, rec storage.NotificationRecord, text string) error {
	data, err := json.Marshal(NewIntentEvent(in, rec, text))
	if err != nil {
		return fmt.Errorf("marshal intent event: %w", err)
	}
	msg := kafka.Message{Key: []byte(in.Ticker), Value: data}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write intent to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *IntentPublisher) Close() error {
	return p.writer.Close()
}

// NewIntentEvent flattens an intent and its record.
func NewIntentEvent(in notify.Intent, rec storage.NotificationRecord, text string) IntentEvent {
	ev := IntentEvent{
		ID:            rec.ID,
		Ticker:        in.Ticker,
		Name:          in.Name,
		TradeDate:     in.TradeDate.Format("2006-01-02"),
		Category:      in.Category,
		ConditionKey:  in.ConditionKey,
		IsStrong:      in.IsStrong,
		StreakDays:    in.StreakDays,
		Label:         in.Label,
		MetricType:    string(in.MetricType),
		MissingFields: in.MissingFields,
		Channel:       rec.Channel,
		PayloadHash:   rec.PayloadHash,
		SentAt:        rec.SentAt,
		Text:          text,
	}
	if in.MetricValue.Valid {
		v := in.MetricValue.Decimal.String()
		ev.MetricValue = &v
	}
	for i, w := range in.Medians.Windows {
		if m := in.Medians.At(i); m.Valid {
			if ev.Medians == nil {
				ev.Medians = make(map[string]string, len(in.Medians.Windows))
			}
			ev.Medians[w.Label] = m.Decimal.String()
		}
	}
	return ev
}
