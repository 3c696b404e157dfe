package storage

import (
	"strings"
	"time"
)

// NotificationRecord is an append-only fact that a notification was decided and handed to dispatch.
// It is the dedup index and is never updated.
type NotificationRecord struct {
	ID           string
	Ticker       string
	Category     string
	ConditionKey string
	SentAt       time.Time
	Channel      string
	PayloadHash  string
	IsStrong     bool
}

// MetricPrefix returns the part of the condition key before the colon, e.g. PER.
func (r NotificationRecord) MetricPrefix() string {
	prefix, _, _ := strings.Cut(r.ConditionKey, ":")
	return prefix
}

// Ticker run statuses.
const (
	RunCompleted     = "completed"
	RunNotProcessed  = "not_processed"
	RunPersistFailed = "persist_failed"
	RunFailed        = "failed"
)

// TickerRun traces how far a ticker got in a batch.
type TickerRun struct {
	Ticker     string
	TradeDate  time.Time
	Status     string
	Reason     string
	RecordedAt time.Time
}
