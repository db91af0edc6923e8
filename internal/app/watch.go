package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"walletscope/internal/alerting"
	"walletscope/internal/analyzer"
	"walletscope/internal/scheduler"
)

// Watch re-analyzes an address on an interval and raises an alert whenever
// the fused risk score crosses the configured threshold.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Address == "" {
		return errors.New("address required")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier := a.newNotifier()
	if a.Config.Alerting.Enabled && notifier == nil {
		a.Logger.Warn().Msg("alerting enabled but no channel configured; alerts will only be logged")
	}

	source := a.newTransferSource()
	anl := a.newAnalyzer(source, a.Config.Analysis.Expand)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Watch.Interval,
		StartupDelay: a.Config.Watch.StartupDelay,
		RunOnStart:   a.Config.Watch.RunOnStart,
	}, a.Logger)

	a.Logger.Info().Str("address", opts.Address).Dur("interval", a.Config.Watch.Interval).Msg("starting watch loop")

	err := sched.Run(ctx, func(tickCtx context.Context) error {
		result, err := anl.Analyze(tickCtx, opts.Address)
		if err != nil {
			return err
		}
		return a.maybeAlert(tickCtx, notifier, result)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}

func (a *App) maybeAlert(ctx context.Context, notifier alerting.Notifier, result *analyzer.Result) error {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	threshold := a.Config.Alerting.ScoreThreshold
	score := result.Report.OverallScore
	var external *float64
	if result.External != nil {
		ext := result.External.OverallScore
		external = &ext
		if ext > score {
			score = ext
		}
	}
	if score < threshold {
		return nil
	}

	a.Logger.Warn().
		Str("address", result.Address).
		Float64("score", score).
		Float64("threshold", threshold).
		Msg("risk threshold crossed")

	if notifier == nil {
		return nil
	}

	types := make([]string, 0, len(result.Patterns))
	for _, p := range result.Patterns {
		types = append(types, string(p.Type))
	}

	note := alerting.Notification{
		Address:        result.Address,
		RunID:          result.RunID,
		OverallScore:   result.Report.OverallScore,
		ExternalScore:  external,
		ScoreThreshold: threshold,
		PatternTypes:   types,
		ClusterCount:   len(result.Clusters),
		GeneratedAt:    result.GeneratedAt,
		Channels:       a.Config.Alerting.Channels,
	}
	if err := notifier.Notify(ctx, note); err != nil {
		a.Logger.Error().Err(err).Str("address", result.Address).Msg("failed to dispatch alert")
	}
	return nil
}
