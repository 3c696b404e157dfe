// Package notify decides whether an evaluated condition may be notified, using the
// notification log as the only source of cooldown state.
package notify

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/signal"
)

// CategoryDataUnknown is the category of missing-data notifications.
const CategoryDataUnknown = "データ不明"

const dataUnknownPrefix = "DATA_UNKNOWN"

// recordNamespace scopes notification record IDs.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("valuewatcher/notification"))

// Intent is one condition a ticker is eligible to notify about.
type Intent struct {
	Ticker       string
	Name         string
	TradeDate    time.Time
	Category     string
	ConditionKey string
	IsStrong     bool
	StreakDays   int
	Label        string
	MetricType   metrics.MetricType
	MetricValue  decimal.NullDecimal
	Medians      median.Result
	// MissingFields and Context are set for data-unknown intents only.
	MissingFields []string
	Context       string
	Channel       string
}

// IsDataUnknown reports whether the intent is a missing-data notification.
func (i Intent) IsDataUnknown() bool {
	return strings.HasPrefix(i.ConditionKey, dataUnknownPrefix+":")
}

// MetricPrefix is the condition key namespace, e.g. PER or DATA_UNKNOWN.
func (i Intent) MetricPrefix() string {
	prefix, _, _ := strings.Cut(i.ConditionKey, ":")
	return prefix
}

// DataUnknownKey is the per-ticker key of missing-data notifications.
func DataUnknownKey(ticker string) string {
	return dataUnknownPrefix + ":" + ticker
}

// SignalIntent builds the valuation intent for a state that carries a category.
// ok is false when the state has nothing to notify.
func SignalIntent(name, channel string, st signal.State, medians median.Result) (Intent, bool) {
	if st.Category == "" {
		return Intent{}, false
	}
	return Intent{
		Ticker:       st.Ticker,
		Name:         name,
		TradeDate:    st.TradeDate,
		Category:     st.Category,
		ConditionKey: signal.ConditionKey(st.MetricType, st.Label),
		IsStrong:     st.IsStrong,
		StreakDays:   st.StreakDays,
		Label:        st.Label,
		MetricType:   st.MetricType,
		MetricValue:  st.MetricValue,
		Medians:      medians,
		Channel:      channel,
	}, true
}

// DataUnknownIntent builds the missing-data intent. Fields are sorted and deduplicated.
func DataUnknownIntent(ticker, name, channel string, tradeDate time.Time, t metrics.MetricType, missing []string, context string) Intent {
	return Intent{
		Ticker:        ticker,
		Name:          name,
		TradeDate:     tradeDate,
		Category:      CategoryDataUnknown,
		ConditionKey:  DataUnknownKey(ticker),
		MetricType:    t,
		MissingFields: normalizeFields(missing),
		Context:       context,
		Channel:       channel,
	}
}

func normalizeFields(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	if len(out) == 0 {
		out = append(out, "unknown")
	}
	return out
}

// RecordID is the deterministic UUIDv5 of ticker|category|key|channel|sent_at.
func RecordID(i Intent, channel string, sentAt time.Time) string {
	raw := strings.Join([]string{
		i.Ticker,
		i.Category,
		i.ConditionKey,
		channel,
		sentAt.UTC().Format(time.RFC3339Nano),
	}, "|")
	return uuid.NewSHA1(recordNamespace, []byte(raw)).String()
}
