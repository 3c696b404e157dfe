package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/storage"
)

type memLog struct {
	mu      sync.Mutex
	records []storage.NotificationRecord
}

func (m *memLog) latest(match func(storage.NotificationRecord) bool) *storage.NotificationRecord {
	var best *storage.NotificationRecord
	for i := range m.records {
		rec := m.records[i]
		if !match(rec) {
			continue
		}
		if best == nil || rec.SentAt.After(best.SentAt) {
			best = &rec
		}
	}
	return best
}

func (m *memLog) LastNotification(_ context.Context, ticker, key string) (*storage.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(func(r storage.NotificationRecord) bool { return r.Ticker == ticker && r.ConditionKey == key }), nil
}

func (m *memLog) LatestNotificationWithPrefix(_ context.Context, ticker, prefix string) (*storage.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(func(r storage.NotificationRecord) bool {
		return r.Ticker == ticker && strings.HasPrefix(r.ConditionKey, prefix)
	}), nil
}

func (m *memLog) AppendNotification(_ context.Context, rec storage.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memLog) ListRecentNotifications(_ context.Context, limit int) ([]storage.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.NotificationRecord(nil), m.records...), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var (
	tradeDate = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	runAt     = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func medianResult() median.Result {
	return median.Result{
		Windows: median.DefaultWindows(),
		Values:  []decimal.NullDecimal{nd("11"), nd("12.345"), {}},
	}
}

func ordinaryIntent() Intent {
	in, _ := SignalIntent("Toyota", "DISCORD", signal.State{
		Ticker: "7203:TSE", TradeDate: tradeDate, MetricType: metrics.PER, MetricValue: nd("10"),
		Under1W: true, Under3M: true, Label: "3M+1W", Category: "PER割安", StreakDays: 2,
	}, medianResult())
	return in
}

func strongIntent() Intent {
	in, _ := SignalIntent("Toyota", "DISCORD", signal.State{
		Ticker: "7203:TSE", TradeDate: tradeDate, MetricType: metrics.PER, MetricValue: nd("10"),
		Under1W: true, Under3M: true, Under1Y: true, Combo: true, IsStrong: true,
		Label: "1Y+3M+1W", Category: "超PER割安", StreakDays: 1,
	}, medianResult())
	return in
}

func newDecider(t *testing.T, log storage.NotificationLog, c *clock) *Decider {
	t.Helper()
	d, err := NewDecider(log, DefaultCooldown, zerolog.Nop())
	require.NoError(t, err)
	return d.WithClock(c.now)
}

func run(t *testing.T, d *Decider, in Intent) Decision {
	t.Helper()
	dec, err := d.Decide(context.Background(), in)
	require.NoError(t, err)
	if dec.Send {
		_, err := d.Commit(context.Background(), dec)
		require.NoError(t, err)
	}
	return dec
}

func TestNewDeciderRejectsBadCooldown(t *testing.T) {
	_, err := NewDecider(&memLog{}, 0, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewDecider(nil, time.Hour, zerolog.Nop())
	assert.Error(t, err)
}

func TestDedupWithinCooldown(t *testing.T) {
	log := &memLog{}
	c := &clock{t: runAt}
	d := newDecider(t, log, c)

	first := run(t, d, ordinaryIntent())
	assert.True(t, first.Send)
	assert.Equal(t, ReasonFirst, first.Reason)

	c.t = runAt.Add(90 * time.Minute)
	second := run(t, d, ordinaryIntent())
	assert.False(t, second.Send)
	assert.Equal(t, ReasonCooldownActive, second.Reason)

	require.Len(t, log.records, 1)
}

func TestCooldownBoundaryStillSuppresses(t *testing.T) {
	log := &memLog{}
	c := &clock{t: runAt}
	d := newDecider(t, log, c)
	run(t, d, ordinaryIntent())

	c.t = runAt.Add(DefaultCooldown)
	assert.False(t, run(t, d, ordinaryIntent()).Send)

	c.t = runAt.Add(DefaultCooldown + time.Second)
	dec := run(t, d, ordinaryIntent())
	assert.True(t, dec.Send)
	assert.Equal(t, ReasonCooldownElapsed, dec.Reason)
	assert.Len(t, log.records, 2)
}

func TestEscalationAtThirtyMinutes(t *testing.T) {
	log := &memLog{}
	c := &clock{t: runAt}
	d := newDecider(t, log, c)
	require.True(t, run(t, d, ordinaryIntent()).Send)

	c.t = runAt.Add(30 * time.Minute)
	dec := run(t, d, strongIntent())
	assert.True(t, dec.Send)
	require.Len(t, log.records, 2)
	assert.True(t, log.records[1].IsStrong)
	assert.Equal(t, "PER:1Y+3M+1W", log.records[1].ConditionKey)
}

func TestEscalationBypassesStrongCooldown(t *testing.T) {
	log := &memLog{}
	c := &clock{t: runAt}
	d := newDecider(t, log, c)

	require.True(t, run(t, d, strongIntent()).Send)
	c.t = runAt.Add(20 * time.Minute)
	require.True(t, run(t, d, ordinaryIntent()).Send)

	c.t = runAt.Add(40 * time.Minute)
	dec := run(t, d, strongIntent())
	assert.True(t, dec.Send)
	assert.Equal(t, ReasonEscalation, dec.Reason)

	// nothing changed since the last strong alert
	c.t = runAt.Add(50 * time.Minute)
	dec = run(t, d, strongIntent())
	assert.False(t, dec.Send)
	assert.Len(t, log.records, 3)
}

func TestDataUnknownIsIndependent(t *testing.T) {
	log := &memLog{}
	c := &clock{t: runAt}
	d := newDecider(t, log, c)
	require.True(t, run(t, d, ordinaryIntent()).Send)

	unknown := DataUnknownIntent("7203:TSE", "Toyota", "DISCORD", tradeDate, metrics.PER, []string{"eps_forecast"}, "日次指標計算")
	dec := run(t, d, unknown)
	assert.True(t, dec.Send)
	assert.Equal(t, "DATA_UNKNOWN:7203:TSE", dec.Intent.ConditionKey)

	c.t = runAt.Add(time.Hour)
	assert.False(t, run(t, d, unknown).Send)
}

func TestCommitRecord(t *testing.T) {
	log := &memLog{}
	c := &clock{t: runAt}
	d := newDecider(t, log, c)

	dec, err := d.Decide(context.Background(), ordinaryIntent())
	require.NoError(t, err)
	rec, err := d.Commit(context.Background(), dec)
	require.NoError(t, err)

	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordID(dec.Intent, "DISCORD", runAt), rec.ID)
	assert.Equal(t, PayloadHash(dec.Text), rec.PayloadHash)
	assert.Len(t, rec.PayloadHash, 40)
	assert.True(t, rec.SentAt.Equal(runAt))

	_, err = d.Commit(context.Background(), Decision{Intent: ordinaryIntent()})
	assert.Error(t, err)
}

func TestRenderSignal(t *testing.T) {
	text := Render(ordinaryIntent())
	want := strings.Join([]string{
		"【PER割安】",
		"Toyota (7203:TSE)",
		"PER: 10.00",
		"中央値(1W/3M/1Y): 11.00 / 12.35 / N/A",
		"判定: 3M+1W",
		"連続: 2日",
	}, "\n")
	assert.Equal(t, want, text)
}

func TestRenderDataUnknown(t *testing.T) {
	in := DataUnknownIntent("9999:TSE", "", "BOTH", tradeDate, metrics.PER, []string{"eps_forecast", " ", "earnings_date", "eps_forecast"}, "日次指標計算")
	assert.Equal(t, []string{"earnings_date", "eps_forecast"}, in.MissingFields)
	assert.Equal(t, strings.Join([]string{
		"【データ不明】",
		"9999:TSE (9999:TSE)",
		"欠損項目: earnings_date, eps_forecast",
		"処理: 日次指標計算",
	}, "\n"), Render(in))

	empty := DataUnknownIntent("9999:TSE", "x", "BOTH", tradeDate, metrics.PER, nil, "ctx")
	assert.Equal(t, []string{"unknown"}, empty.MissingFields)
}

func TestSignalIntentRequiresCategory(t *testing.T) {
	_, ok := SignalIntent("x", "DISCORD", signal.State{Ticker: "1234:TSE", Label: "1W", Under1W: true}, medianResult())
	assert.False(t, ok)
}
