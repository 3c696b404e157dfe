package notify

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Render formats an intent as plain message text. Channel markup is left to dispatchers.
func Render(i Intent) string {
	if i.IsDataUnknown() {
		return strings.Join([]string{
			"【" + CategoryDataUnknown + "】",
			fmt.Sprintf("%s (%s)", displayName(i), i.Ticker),
			"欠損項目: " + strings.Join(i.MissingFields, ", "),
			"処理: " + i.Context,
		}, "\n")
	}

	labels := make([]string, 0, len(i.Medians.Windows))
	values := make([]string, 0, len(i.Medians.Windows))
	for idx, w := range i.Medians.Windows {
		labels = append(labels, w.Label)
		values = append(values, formatValue(i.Medians.At(idx)))
	}
	return strings.Join([]string{
		"【" + i.Category + "】",
		fmt.Sprintf("%s (%s)", displayName(i), i.Ticker),
		fmt.Sprintf("%s: %s", i.MetricType, formatValue(i.MetricValue)),
		fmt.Sprintf("中央値(%s): %s", strings.Join(labels, "/"), strings.Join(values, " / ")),
		"判定: " + i.Label,
		fmt.Sprintf("連続: %d日", i.StreakDays),
	}, "\n")
}

// PayloadHash is the hex SHA-1 of the rendered text.
func PayloadHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func displayName(i Intent) string {
	if i.Name == "" {
		return i.Ticker
	}
	return i.Name
}

func formatValue(v decimal.NullDecimal) string {
	if !v.Valid {
		return "N/A"
	}
	return v.Decimal.StringFixed(2)
}
