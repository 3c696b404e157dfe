package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"valuewatcher/internal/logging"
)

// ErrInvalid marks configuration errors; they are fatal before any ticker is processed.
var ErrInvalid = errors.New("invalid configuration")

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Calendar     CalendarConfig     `mapstructure:"calendar"`
	Signal       SignalConfig       `mapstructure:"signal"`
	Notification NotificationConfig `mapstructure:"notification"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	MarketData   MarketDataConfig   `mapstructure:"marketdata"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Watchlist    WatchlistConfig    `mapstructure:"watchlist"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StorageConfig selects the persistence engine.
type StorageConfig struct {
	Driver          string `mapstructure:"driver"`
	BadgerDir       string `mapstructure:"badger_dir"`
	InMemory        bool   `mapstructure:"in_memory"`
	NotificationLog string `mapstructure:"notification_log"`
}

// RedisConfig backs the optional redis notification log.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Retention time.Duration `mapstructure:"retention"`
}

// KafkaConfig publishes notification intents for external formatters.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SchedulerConfig governs when batches run.
type SchedulerConfig struct {
	Timezone        string `mapstructure:"timezone"`
	DailyCron       string `mapstructure:"daily_cron"`
	At21Cron        string `mapstructure:"at21_cron"`
	AdvisoryLockKey int64  `mapstructure:"advisory_lock_key"`
	RunOnStart      bool   `mapstructure:"run_on_start"`
}

// CalendarConfig lists exchange holidays on top of weekends.
type CalendarConfig struct {
	Holidays []string `mapstructure:"holidays"`
}

// WindowConfig is one rolling median window.
type WindowConfig struct {
	Label string `mapstructure:"label"`
	Days  int    `mapstructure:"days"`
}

// WindowsConfig holds the three median windows, shortest first.
type WindowsConfig struct {
	Short  WindowConfig `mapstructure:"short"`
	Medium WindowConfig `mapstructure:"medium"`
	Long   WindowConfig `mapstructure:"long"`
}

// SignalConfig tunes evaluation.
type SignalConfig struct {
	Windows            WindowsConfig `mapstructure:"windows"`
	MinOrdinaryWindows int           `mapstructure:"min_ordinary_windows"`
}

// NotificationConfig drives dedup.
type NotificationConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// PipelineConfig sizes the batch.
type PipelineConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// SourceConfig describes one market data source in priority order.
type SourceConfig struct {
	Name          string            `mapstructure:"name"`
	Kind          string            `mapstructure:"kind"`
	BaseURL       string            `mapstructure:"base_url"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RatePerSecond float64           `mapstructure:"rate_per_second"`
	Burst         int               `mapstructure:"burst"`
	Selectors     map[string]string `mapstructure:"selectors"`
}

// MarketDataConfig lists sources.
type MarketDataConfig struct {
	Sources []SourceConfig `mapstructure:"sources"`
}

// AlertingConfig defines dispatch routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig configures the webhook dispatcher.
type DiscordConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	RetryCount int           `mapstructure:"retry_count"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// WatchlistConfig points at the read-only watchlist file.
type WatchlistConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VALUEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "valuewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.badger_dir", "data/badger")
	v.SetDefault("storage.notification_log", "store")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "valuewatcher")
	v.SetDefault("redis.retention", "168h")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "valuation-intents")

	v.SetDefault("scheduler.timezone", "Asia/Tokyo")
	v.SetDefault("scheduler.daily_cron", "0 18 * * 1-5")
	v.SetDefault("scheduler.at21_cron", "0 21 * * 1-5")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x76616c75))
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("signal.windows.short.label", "1W")
	v.SetDefault("signal.windows.short.days", 5)
	v.SetDefault("signal.windows.medium.label", "3M")
	v.SetDefault("signal.windows.medium.days", 63)
	v.SetDefault("signal.windows.long.label", "1Y")
	v.SetDefault("signal.windows.long.days", 252)
	v.SetDefault("signal.min_ordinary_windows", 2)

	v.SetDefault("notification.cooldown", "2h")

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.batch_timeout", "15m")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.retry_count", 1)
	v.SetDefault("alerting.discord.timeout", "10s")

	v.SetDefault("watchlist.path", "watchlist.toml")

	v.SetDefault("export.max_data_points", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if c.Notification.Cooldown <= 0 {
		return invalid("notification.cooldown must be greater than zero")
	}
	if c.Pipeline.Workers <= 0 {
		return invalid("pipeline.workers must be greater than zero")
	}
	if c.Pipeline.BatchTimeout < 0 {
		return invalid("pipeline.batch_timeout cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return invalid("export.max_data_points must be greater than zero")
	}

	switch c.Storage.Driver {
	case "postgres", "badger":
	default:
		return invalid("storage.driver must be postgres or badger, got %q", c.Storage.Driver)
	}
	switch c.Storage.NotificationLog {
	case "store":
	case "redis":
		if c.Redis.Addr == "" {
			return invalid("redis.addr is required when storage.notification_log=redis")
		}
	default:
		return invalid("storage.notification_log must be store or redis, got %q", c.Storage.NotificationLog)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return invalid("kafka.brokers and kafka.topic are required when kafka is enabled")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	for _, spec := range []string{c.Scheduler.DailyCron, c.Scheduler.At21Cron} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return invalid("scheduler cron %q: %v", spec, err)
		}
	}
	for _, day := range c.Calendar.Holidays {
		if _, err := time.Parse(time.DateOnly, strings.TrimSpace(day)); err != nil {
			return invalid("calendar.holidays entry %q is not YYYY-MM-DD", day)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return invalid("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return invalid("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return invalid("alerting.discord.webhook_url is required when discord is enabled")
	}
	if c.Alerting.Discord.RetryCount < 0 {
		return invalid("alerting.discord.retry_count cannot be negative")
	}

	for i, src := range c.MarketData.Sources {
		switch src.Kind {
		case "json", "html":
		default:
			return invalid("marketdata.sources[%d].kind must be json or html, got %q", i, src.Kind)
		}
		if src.BaseURL == "" {
			return invalid("marketdata.sources[%d].base_url is required", i)
		}
		if src.RatePerSecond < 0 {
			return invalid("marketdata.sources[%d].rate_per_second cannot be negative", i)
		}
	}
	return nil
}

func (s SignalConfig) validate() error {
	windows := []WindowConfig{s.Windows.Short, s.Windows.Medium, s.Windows.Long}
	prev := 0
	for _, w := range windows {
		if w.Label == "" {
			return invalid("signal window label must not be empty")
		}
		if w.Days <= 0 {
			return invalid("signal window %s must be greater than zero days", w.Label)
		}
		if w.Days < prev {
			return invalid("signal windows must be non-decreasing (short <= medium <= long)")
		}
		prev = w.Days
	}
	if s.MinOrdinaryWindows < 1 || s.MinOrdinaryWindows > len(windows) {
		return invalid("signal.min_ordinary_windows must be between 1 and %d", len(windows))
	}
	return nil
}

// Location resolves the exchange time zone.
func (c *Config) Location() (*time.Location, error) {
	name := c.Scheduler.Timezone
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalid("scheduler.timezone %q: %v", name, err)
	}
	return loc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
