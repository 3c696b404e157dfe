package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/signal"
	"valuewatcher/internal/storage"
)

// Show prints recent signal states and notifications.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	log, closeLog := a.notificationLog(store)
	defer closeLog()

	states, err := store.ListRecentSignalStates(ctx, opts.Limit)
	if err != nil {
		return err
	}
	records, err := log.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	var runs []storage.TickerRun
	if len(states) > 0 {
		runs, err = store.ListTickerRuns(ctx, states[0].TradeDate)
		if err != nil {
			return err
		}
	}
	return renderShow(os.Stdout, states, records, runs)
}

func renderShow(out io.Writer, states []signal.State, records []storage.NotificationRecord, runs []storage.TickerRun) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if len(states) == 0 {
		fmt.Fprintln(writer, "no signal states found")
	} else {
		fmt.Fprintln(writer, "Trade Date\tTicker\tMetric\tValue\tLabel\tCategory\tStreak\tStrong")
		for _, st := range states {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%t\n",
				calendar.Format(st.TradeDate),
				st.Ticker,
				st.MetricType,
				formatNull(st.MetricValue, 2),
				st.Label,
				orDash(st.Category),
				st.StreakDays,
				st.IsStrong,
			)
		}
	}

	fmt.Fprintln(writer)
	if len(records) == 0 {
		fmt.Fprintln(writer, "no notifications found")
	} else {
		fmt.Fprintln(writer, "Sent (UTC)\tTicker\tCategory\tCondition\tChannel\tStrong")
		for _, rec := range records {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%t\n",
				rec.SentAt.UTC().Format(time.RFC3339),
				rec.Ticker,
				rec.Category,
				sanitizeInline(rec.ConditionKey),
				rec.Channel,
				rec.IsStrong,
			)
		}
	}

	if len(runs) > 0 {
		fmt.Fprintln(writer)
		fmt.Fprintf(writer, "Runs %s\tTicker\tStatus\tReason\n", calendar.Format(runs[0].TradeDate))
		for _, run := range runs {
			fmt.Fprintf(writer, "\t%s\t%s\t%s\n", run.Ticker, run.Status, sanitizeInline(orDash(run.Reason)))
		}
	}
	return writer.Flush()
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
