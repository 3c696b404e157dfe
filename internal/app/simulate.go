package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"valuewatcher/internal/alerting"
	"valuewatcher/internal/median"
	"valuewatcher/internal/metrics"
	"valuewatcher/internal/notify"
	"valuewatcher/internal/pipeline"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/ticker"
)

// SimulateOptions describe a synthetic notification.
type SimulateOptions struct {
	Ticker      string
	Name        string
	Channel     string
	MetricType  metrics.MetricType
	Value       float64
	Medians     [3]float64
	DataUnknown bool
}

// SimulateAlert evaluates a synthetic metric against the given medians and dispatches the
// rendered notification without touching the store or the notification log.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting が無効です")
	}
	in, err := a.simulatedIntent(opts, time.Now().UTC())
	if err != nil {
		return err
	}
	text := notify.Render(in)
	a.Logger.Info().Str("ticker", in.Ticker).Str("category", in.Category).Str("condition_key", in.ConditionKey).Msg("dispatching simulated notification")
	return a.newDispatcher().Send(ctx, in.Channel, in.Category, text)
}

func (a *App) simulatedIntent(opts SimulateOptions, now time.Time) (notify.Intent, error) {
	tk, err := ticker.Normalize(opts.Ticker)
	if err != nil {
		return notify.Intent{}, err
	}
	channel := opts.Channel
	if channel == "" {
		channel = alerting.ChannelBoth
	}
	t := opts.MetricType
	if t == "" {
		t = metrics.PER
	}
	cal, err := a.newCalendar()
	if err != nil {
		return notify.Intent{}, err
	}
	tradeDate := cal.Date(now)

	if opts.DataUnknown {
		return notify.DataUnknownIntent(tk, opts.Name, channel, tradeDate, t, []string{metrics.FieldEPSForecast}, pipeline.EvaluationContext), nil
	}

	result := median.Result{Windows: pipeline.Windows(a.Config.Signal.Windows)}
	for _, v := range opts.Medians {
		result.Values = append(result.Values, positive(v))
	}
	ev := signal.NewEvaluator(a.Config.Signal.MinOrdinaryWindows).Evaluate(tk, tradeDate, t, positive(opts.Value), result)
	state := signal.NextState(ev, nil, tradeDate, now)
	in, ok := notify.SignalIntent(opts.Name, channel, state, result)
	if !ok {
		return notify.Intent{}, fmt.Errorf("%s %s does not trigger a signal (label %s)", t, decimal.NewFromFloat(opts.Value).String(), state.Label)
	}
	return in, nil
}

func positive(v float64) decimal.NullDecimal {
	if v <= 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}
