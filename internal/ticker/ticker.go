// Package ticker normalises exchange-qualified equity codes such as "7203:TSE".
package ticker

import (
	"fmt"
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^\d{4}:[A-Z]+$`)

// Normalize upper-cases and validates a ticker.
func Normalize(raw string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if !pattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid ticker format: %q", raw)
	}
	return normalized, nil
}

// Code returns the numeric security code without the exchange suffix.
func Code(t string) string {
	code, _, _ := strings.Cut(t, ":")
	return code
}

// Exchange returns the exchange suffix, empty when absent.
func Exchange(t string) string {
	_, exchange, _ := strings.Cut(t, ":")
	return exchange
}
