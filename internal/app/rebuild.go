package app

import (
	"context"
	"errors"

	"valuewatcher/internal/calendar"
	"valuewatcher/internal/pipeline"
)

// Rebuild recomputes medians and signal states from stored daily metrics.
func (a *App) Rebuild(ctx context.Context, opts pipeline.RebuildOptions) (pipeline.RebuildResult, error) {
	if opts.From.IsZero() || opts.To.IsZero() {
		return pipeline.RebuildResult{}, errors.New("再計算範囲が空です。--from/--to を確認してください")
	}
	if opts.DryRun {
		a.Logger.Warn().Msg("rebuild dry-run: nothing will be written")
	}

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return pipeline.RebuildResult{}, err
	}
	defer rt.Close()

	a.Logger.Info().
		Str("from", calendar.Format(opts.From)).
		Str("to", calendar.Format(opts.To)).
		Strs("tickers", opts.Tickers).
		Msg("rebuilding signal history")
	return rt.runner.Rebuild(ctx, opts)
}
