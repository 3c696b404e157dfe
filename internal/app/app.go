package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"valuewatcher/internal/alerting"
	"valuewatcher/internal/calendar"
	"valuewatcher/internal/config"
	"valuewatcher/internal/marketdata"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/notify"
	"valuewatcher/internal/pipeline"
	"valuewatcher/internal/scheduler"
	"valuewatcher/internal/storage"
	"valuewatcher/internal/watchlist"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openStore opens the configured repository. Postgres schemas are migrated first when
// database.auto_migrate is set.
func (a *App) openStore(ctx context.Context) (storage.Repository, error) {
	switch a.Config.Storage.Driver {
	case "badger":
		return storage.OpenBadger(a.Config.Storage)
	case "postgres":
		if a.Config.Database.DSN == "" {
			return nil, fmt.Errorf("%w: database.dsn is required for the postgres driver", config.ErrInvalid)
		}
		if a.Config.Database.AutoMigrate {
			version, err := storage.Migrate(a.Config.Database.DSN)
			if err != nil {
				return nil, err
			}
			a.Logger.Info().Uint("version", version).Msg("schema migrated")
		}
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		return storage.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalid, a.Config.Storage.Driver)
	}
}

// notificationLog returns the dedup index: the store itself or redis.
func (a *App) notificationLog(store storage.Repository) (storage.NotificationLog, func()) {
	if a.Config.Storage.NotificationLog != "redis" {
		return store, func() {}
	}
	client := storage.NewRedisClient(a.Config.Redis)
	closer := func() {
		if err := client.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close redis client")
		}
	}
	return storage.NewRedisNotificationLog(client, a.Config.Redis.KeyPrefix, a.Config.Redis.Retention), closer
}

func (a *App) newDispatcher() alerting.Dispatcher {
	cfg := a.Config.Alerting
	senders := map[string]alerting.Sender{}
	if cfg.Enabled && cfg.Telegram.Enabled {
		senders[alerting.ChannelTelegram] = alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger)
	}
	if cfg.Enabled && cfg.Discord.Enabled {
		senders[alerting.ChannelDiscord] = alerting.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Discord.RetryCount, cfg.Discord.Timeout, a.Logger)
	}
	if len(senders) == 0 {
		a.Logger.Warn().Msg("no alert transport enabled; notifications are only logged")
	}
	return alerting.NewRouter(senders, alerting.NewLogSender(a.Logger), a.Logger)
}

func (a *App) newCalendar() (*calendar.Calendar, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	return calendar.New(loc, a.Config.Calendar.Holidays)
}

// runtime bundles a runner with the resources it holds open.
type runtime struct {
	runner   *pipeline.Runner
	calendar *calendar.Calendar
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) newRuntime(ctx context.Context) (*runtime, error) {
	rt := &runtime{}
	fail := func(err error) (*runtime, error) {
		rt.Close()
		return nil, err
	}

	cal, err := a.newCalendar()
	if err != nil {
		return nil, err
	}
	rt.calendar = cal

	sources, err := marketdata.FromConfig(a.Config.MarketData.Sources, a.Logger)
	if err != nil {
		return nil, err
	}
	if len(a.Config.MarketData.Sources) == 0 {
		a.Logger.Warn().Msg("marketdata.sources is empty; every ticker will report missing data")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close store")
		}
	})

	log, closeLog := a.notificationLog(store)
	rt.closers = append(rt.closers, closeLog)

	decider, err := notify.NewDecider(log, a.Config.Notification.Cooldown, a.Logger)
	if err != nil {
		return fail(err)
	}

	deps := pipeline.Deps{
		Watchlist:  watchlist.NewFile(a.Config.Watchlist.Path, a.Logger),
		Source:     sources,
		Store:      store,
		Decider:    decider,
		Dispatcher: a.newDispatcher(),
		Calendar:   cal,
	}
	if a.Config.Kafka.Enabled {
		pub := alerting.NewIntentPublisher(a.Config.Kafka.Brokers, a.Config.Kafka.Topic)
		deps.Publisher = pub
		rt.closers = append(rt.closers, func() {
			if err := pub.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close kafka writer")
			}
		})
	}

	runner, err := pipeline.New(a.Config, deps, a.Logger)
	if err != nil {
		return fail(err)
	}
	rt.runner = runner
	return rt, nil
}

// Run executes the long-running scheduled service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := scheduler.New(scheduler.Options{
		DailyCron:  a.Config.Scheduler.DailyCron,
		At21Cron:   a.Config.Scheduler.At21Cron,
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, rt.calendar, a.Logger)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	a.Logger.Info().Str("timezone", rt.calendar.Location().String()).Msg("starting valuation watcher")
	err = sched.Run(ctx, func(ctx context.Context, tradeDate time.Time, mode watchlist.Mode) error {
		_, err := rt.runner.RunBatch(ctx, tradeDate, mode)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("valuation watcher stopped")
	return nil
}

// EvaluateOptions select one manual batch.
type EvaluateOptions struct {
	// TradeDate is zero for the latest trading day in the exchange zone.
	TradeDate time.Time
	Mode      watchlist.Mode
}

// Evaluate runs one batch and returns its counters.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) (pipeline.BatchResult, error) {
	rt, err := a.newRuntime(ctx)
	if err != nil {
		return pipeline.BatchResult{}, err
	}
	defer rt.Close()

	tradeDate := opts.TradeDate
	if tradeDate.IsZero() {
		tradeDate = rt.calendar.Latest(rt.calendar.Date(time.Now()))
	} else if !rt.calendar.IsTradingDay(tradeDate) {
		a.Logger.Warn().Str("trade_date", calendar.Format(tradeDate)).Msg("evaluating a non-trading day")
	}
	mode := opts.Mode
	if mode == "" {
		mode = watchlist.ModeAll
	}
	return rt.runner.RunBatch(ctx, tradeDate, mode)
}

// ExportOptions hold parameters for exporting one ticker's history.
type ExportOptions struct {
	Ticker     string
	MetricType metrics.MetricType
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
