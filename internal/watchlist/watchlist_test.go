package watchlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuewatcher/internal/metrics"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileTOML(t *testing.T) {
	path := writeFile(t, "watchlist.toml", `
[[tickers]]
ticker = "7203:tse"
name = "トヨタ自動車"
metric_type = "per"
notify_channel = "both"
notify_timing = "immediate"

[[tickers]]
ticker = "6758:TSE"
name = "ソニーG"
metric_type = "PSR"
notify_timing = "AT_21"

[[tickers]]
ticker = "9984:TSE"
name = "SBG"
is_active = false
`)

	entries, err := NewFile(path, zerolog.Nop()).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		Ticker: "7203:TSE", Name: "トヨタ自動車", MetricType: metrics.PER,
		NotifyChannel: "BOTH", NotifyTiming: TimingImmediate, IsActive: true,
	}, entries[0])
	assert.Equal(t, metrics.PSR, entries[1].MetricType)
	assert.Equal(t, "DISCORD", entries[1].NotifyChannel)
}

func TestFileYAML(t *testing.T) {
	path := writeFile(t, "watchlist.yaml", `
tickers:
  - ticker: "1234:TSE"
    name: Sample
    notify_channel: TELEGRAM
`)
	entries, err := NewFile(path, zerolog.Nop()).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "TELEGRAM", entries[0].NotifyChannel)
	assert.Equal(t, metrics.PER, entries[0].MetricType)
}

func TestFileRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"bad ticker": `[[tickers]]
ticker = "TOYOTA"
name = "x"`,
		"bad channel": `[[tickers]]
ticker = "7203:TSE"
name = "x"
notify_channel = "LINE"`,
		"bad metric": `[[tickers]]
ticker = "7203:TSE"
name = "x"
metric_type = "PBR"`,
		"missing name": `[[tickers]]
ticker = "7203:TSE"`,
		"duplicate": `[[tickers]]
ticker = "7203:TSE"
name = "a"
[[tickers]]
ticker = "7203:tse"
name = "b"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFile(writeFile(t, "w.toml", body), zerolog.Nop()).Load()
			assert.Error(t, err)
		})
	}

	_, err := NewFile(writeFile(t, "w.json", "{}"), zerolog.Nop()).Load()
	assert.Error(t, err)
}

func TestDispatchesIn(t *testing.T) {
	immediate := Entry{NotifyChannel: "DISCORD", NotifyTiming: TimingImmediate}
	at21 := Entry{NotifyChannel: "DISCORD", NotifyTiming: TimingAt21}
	off := Entry{NotifyChannel: "DISCORD", NotifyTiming: TimingOff}
	muted := Entry{NotifyChannel: "OFF", NotifyTiming: TimingImmediate}

	assert.True(t, immediate.DispatchesIn(ModeAll))
	assert.True(t, immediate.DispatchesIn(ModeDaily))
	assert.False(t, immediate.DispatchesIn(ModeAt21))
	assert.True(t, at21.DispatchesIn(ModeAt21))
	assert.False(t, at21.DispatchesIn(ModeDaily))
	assert.False(t, off.DispatchesIn(ModeAll))
	assert.False(t, muted.DispatchesIn(ModeAll))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" daily ")
	require.NoError(t, err)
	assert.Equal(t, ModeDaily, m)
	_, err = ParseMode("weekly")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	entries, err := Static{{Ticker: "1"}, {Ticker: "2", IsActive: true}}.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
