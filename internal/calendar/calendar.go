// Package calendar decides which dates are exchange trading days.
package calendar

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// Calendar treats weekends and configured holidays as non-trading days.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// New builds a calendar from YYYY-MM-DD holiday strings.
func New(loc *time.Location, holidays []string) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, raw := range holidays {
		d, err := time.Parse(layout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", raw, err)
		}
		c.holidays[d.Format(layout)] = struct{}{}
	}
	return c, nil
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Date converts an instant to its exchange-local calendar date at 00:00 UTC.
func (c *Calendar) Date(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Day truncates a date value to 00:00 UTC without shifting it into the exchange zone.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a YYYY-MM-DD trade date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", raw, err)
	}
	return d, nil
}

// Format renders a trade date as YYYY-MM-DD.
func Format(d time.Time) string {
	return d.Format(layout)
}

// IsTradingDay reports whether d is a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[d.Format(layout)]
	return !holiday
}

// Previous returns the last trading day strictly before d.
func (c *Calendar) Previous(d time.Time) time.Time {
	p := d.AddDate(0, 0, -1)
	for !c.IsTradingDay(p) {
		p = p.AddDate(0, 0, -1)
	}
	return p
}

// Latest returns d when it is a trading day, otherwise the trading day before it.
func (c *Calendar) Latest(d time.Time) time.Time {
	if c.IsTradingDay(d) {
		return d
	}
	return c.Previous(d)
}

// Range lists the trading days in [from, to].
func (c *Calendar) Range(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
