// Package watchlist loads the read-only list of tickers to evaluate.
package watchlist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"valuewatcher/internal/metrics"
	"valuewatcher/internal/ticker"
)

// Notify timings.
const (
	TimingImmediate = "IMMEDIATE"
	TimingAt21      = "AT_21"
	TimingOff       = "OFF"
)

// Mode selects which notify timings a batch dispatches for.
type Mode string

const (
	ModeAll   Mode = "ALL"
	ModeDaily Mode = "DAILY"
	ModeAt21  Mode = "AT_21"
)

// ParseMode accepts ALL, DAILY or AT_21 in any case.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(raw))); m {
	case ModeAll, ModeDaily, ModeAt21:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported execution mode: %q", raw)
	}
}

// Entry is one watched ticker.
type Entry struct {
	Ticker        string             `validate:"required"`
	Name          string             `validate:"required"`
	MetricType    metrics.MetricType `validate:"oneof=PER PSR"`
	NotifyChannel string             `validate:"oneof=DISCORD TELEGRAM BOTH OFF"`
	NotifyTiming  string             `validate:"oneof=IMMEDIATE AT_21 OFF"`
	IsActive      bool
}

// DispatchesIn reports whether the entry's notifications go out in a batch of mode.
func (e Entry) DispatchesIn(mode Mode) bool {
	if e.NotifyChannel == "OFF" || e.NotifyTiming == TimingOff {
		return false
	}
	switch mode {
	case ModeAll:
		return true
	case ModeDaily:
		return e.NotifyTiming == TimingImmediate
	case ModeAt21:
		return e.NotifyTiming == TimingAt21
	}
	return false
}

// Source lists active entries.
type Source interface {
	ListActive(ctx context.Context) ([]Entry, error)
}

// Static serves a fixed list.
type Static []Entry

// ListActive implements Source.
func (s Static) ListActive(context.Context) ([]Entry, error) {
	out := make([]Entry, 0, len(s))
	for _, e := range s {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

type fileEntry struct {
	Ticker        string `toml:"ticker" yaml:"ticker"`
	Name          string `toml:"name" yaml:"name"`
	MetricType    string `toml:"metric_type" yaml:"metric_type"`
	NotifyChannel string `toml:"notify_channel" yaml:"notify_channel"`
	NotifyTiming  string `toml:"notify_timing" yaml:"notify_timing"`
	IsActive      *bool  `toml:"is_active" yaml:"is_active"`
}

type fileDocument struct {
	Tickers []fileEntry `toml:"tickers" yaml:"tickers"`
}

// File reads a TOML or YAML watchlist on every call so edits apply to the next batch.
type File struct {
	path     string
	validate *validator.Validate
	logger   zerolog.Logger
}

var _ Source = (*File)(nil)

// NewFile creates a file-backed source. The format follows the extension.
func NewFile(path string, logger zerolog.Logger) *File {
	return &File{
		path:     path,
		validate: validator.New(),
		logger:   logger.With().Str("component", "watchlist").Logger(),
	}
}

// ListActive implements Source.
func (f *File) ListActive(context.Context) ([]Entry, error) {
	entries, err := f.Load()
	if err != nil {
		return nil, err
	}
	active := entries[:0]
	for _, e := range entries {
		if e.IsActive {
			active = append(active, e)
		}
	}
	f.logger.Debug().Int("active", len(active)).Str("path", f.path).Msg("watchlist loaded")
	return active, nil
}

// Load returns every entry, inactive ones included.
func (f *File) Load() ([]Entry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var doc fileDocument
	switch ext := strings.ToLower(filepath.Ext(f.path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported watchlist format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode watchlist %s: %w", f.path, err)
	}

	seen := make(map[string]struct{}, len(doc.Tickers))
	entries := make([]Entry, 0, len(doc.Tickers))
	for i, raw := range doc.Tickers {
		e, err := f.entry(raw)
		if err != nil {
			return nil, fmt.Errorf("watchlist entry %d: %w", i, err)
		}
		if _, dup := seen[e.Ticker]; dup {
			return nil, fmt.Errorf("watchlist entry %d: duplicate ticker %s", i, e.Ticker)
		}
		seen[e.Ticker] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

func (f *File) entry(raw fileEntry) (Entry, error) {
	tk, err := ticker.Normalize(raw.Ticker)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Ticker:        tk,
		Name:          strings.TrimSpace(raw.Name),
		MetricType:    metrics.MetricType(strings.ToUpper(strings.TrimSpace(raw.MetricType))),
		NotifyChannel: upperOr(raw.NotifyChannel, "DISCORD"),
		NotifyTiming:  upperOr(raw.NotifyTiming, TimingImmediate),
		IsActive:      raw.IsActive == nil || *raw.IsActive,
	}
	if e.MetricType == "" {
		e.MetricType = metrics.PER
	}
	if err := f.validate.Struct(e); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", tk, err)
	}
	return e, nil
}

func upperOr(raw, def string) string {
	if v := strings.ToUpper(strings.TrimSpace(raw)); v != "" {
		return v
	}
	return def
}
