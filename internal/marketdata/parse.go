package marketdata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	numberToken = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	unitTokens  = []struct {
		unit string
		re   *regexp.Regexp
		mult decimal.Decimal
	}{
		{"兆", regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*兆`), decimal.New(1, 12)},
		{"億", regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*億`), decimal.New(1, 8)},
		{"万", regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*万`), decimal.New(1, 4)},
	}
	longDate  = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	kanjiDate = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	shortDate = regexp.MustCompile(`(\d{2})/(\d{1,2})/(\d{1,2})`)
)

// ParseNumber reads a figure as printed on Japanese quote pages:
// "2,500円", "1.2兆", "3兆4,500億", "-" for none.
func ParseNumber(raw string) (decimal.Decimal, error) {
	s := strings.NewReplacer(",", "", " ", "", "　", "", "円", "", "株", "").Replace(raw)
	switch s {
	case "", "-", "--", "---", "―", "－":
		return decimal.Decimal{}, fmt.Errorf("missing numeric value: %q", raw)
	}

	if strings.ContainsAny(s, "兆億万") {
		total := decimal.Zero
		found := false
		for _, u := range unitTokens {
			m := u.re.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			v, err := decimal.NewFromString(m[1])
			if err != nil {
				return decimal.Decimal{}, fmt.Errorf("parse %s amount %q: %w", u.unit, raw, err)
			}
			total = total.Add(v.Mul(u.mult))
			found = true
		}
		if !found {
			return decimal.Decimal{}, fmt.Errorf("no japanese large-number unit: %q", raw)
		}
		return total, nil
	}

	token := numberToken.FindString(s)
	if token == "" {
		return decimal.Decimal{}, fmt.Errorf("no numeric token: %q", raw)
	}
	return decimal.NewFromString(token)
}

// ParseDate accepts 2026-05-08, 2026/5/8, 2026年5月8日 and 26/05/08.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, re := range []*regexp.Regexp{longDate, kanjiDate} {
		if m := re.FindStringSubmatch(s); m != nil {
			return buildDate(raw, m[1], m[2], m[3], 0)
		}
	}
	if m := shortDate.FindStringSubmatch(s); m != nil {
		return buildDate(raw, m[1], m[2], m[3], 2000)
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", raw)
}

func buildDate(raw, ys, ms, ds string, yearOffset int) (time.Time, error) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	y += yearOffset
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date: %q", raw)
	}
	return t, nil
}
