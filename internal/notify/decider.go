package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"valuewatcher/internal/storage"
)

// DefaultCooldown is the minimum gap between two notifications of one condition.
const DefaultCooldown = 2 * time.Hour

// Decision reasons, logged with every decision.
const (
	ReasonFirst           = "no prior notification"
	ReasonCooldownElapsed = "cooldown elapsed"
	ReasonCooldownActive  = "cooldown active"
	ReasonEscalation      = "escalated to strong"
)

// Decision is the outcome for one intent.
type Decision struct {
	Intent Intent
	Send   bool
	Reason string
	At     time.Time
	Text   string
}

// Decider applies cooldown and escalation rules against the notification log.
type Decider struct {
	log      storage.NotificationLog
	cooldown time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDecider returns a decider. A non-positive cooldown is rejected.
func NewDecider(log storage.NotificationLog, cooldown time.Duration, logger zerolog.Logger) (*Decider, error) {
	if log == nil {
		return nil, errors.New("notification log is required")
	}
	if cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %s", cooldown)
	}
	return &Decider{
		log:      log,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "decider").Logger(),
	}, nil
}

// WithClock replaces the wall clock, for replays and tests.
func (d *Decider) WithClock(now func() time.Time) *Decider {
	d.now = now
	return d
}

// Decide reads the log and reports whether the intent may be sent now.
//
// A condition is suppressed while its last record is within the cooldown, boundary included.
// A strong intent still fires when a non-strong record of the same metric was sent after the
// last strong one, so an escalation is never hidden by an earlier strong alert's cooldown.
func (d *Decider) Decide(ctx context.Context, in Intent) (Decision, error) {
	dec := Decision{Intent: in, At: d.now(), Text: Render(in)}

	last, err := d.log.LastNotification(ctx, in.Ticker, in.ConditionKey)
	if err != nil {
		return Decision{}, fmt.Errorf("read last notification: %w", err)
	}

	switch {
	case last == nil:
		dec.Send, dec.Reason = true, ReasonFirst
	case dec.At.Sub(last.SentAt) > d.cooldown:
		dec.Send, dec.Reason = true, ReasonCooldownElapsed
	default:
		dec.Reason = ReasonCooldownActive
		if in.IsStrong {
			escalated, err := d.escalated(ctx, in, last)
			if err != nil {
				return Decision{}, err
			}
			if escalated {
				dec.Send, dec.Reason = true, ReasonEscalation
			}
		}
	}

	d.logger.Info().
		Str("ticker", in.Ticker).
		Str("condition_key", in.ConditionKey).
		Bool("send", dec.Send).
		Str("reason", dec.Reason).
		Msg("notification decided")
	return dec, nil
}

func (d *Decider) escalated(ctx context.Context, in Intent, lastStrong *storage.NotificationRecord) (bool, error) {
	latest, err := d.log.LatestNotificationWithPrefix(ctx, in.Ticker, in.MetricPrefix()+":")
	if err != nil {
		return false, fmt.Errorf("read latest metric notification: %w", err)
	}
	if latest == nil || latest.IsStrong {
		return false, nil
	}
	return latest.SentAt.After(lastStrong.SentAt), nil
}

// Commit appends the record for a positive decision. It must run before dispatch so a
// failed or retried send can never produce a second notification inside the window.
func (d *Decider) Commit(ctx context.Context, dec Decision) (storage.NotificationRecord, error) {
	if !dec.Send {
		return storage.NotificationRecord{}, fmt.Errorf("commit of suppressed decision for %s", dec.Intent.ConditionKey)
	}
	rec := storage.NotificationRecord{
		ID:           RecordID(dec.Intent, dec.Intent.Channel, dec.At),
		Ticker:       dec.Intent.Ticker,
		Category:     dec.Intent.Category,
		ConditionKey: dec.Intent.ConditionKey,
		SentAt:       dec.At,
		Channel:      dec.Intent.Channel,
		PayloadHash:  PayloadHash(dec.Text),
		IsStrong:     dec.Intent.IsStrong,
	}
	if err := d.log.AppendNotification(ctx, rec); err != nil {
		return storage.NotificationRecord{}, fmt.Errorf("append notification record: %w", err)
	}
	return rec, nil
}
