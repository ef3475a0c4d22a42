package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fuel-fraud-alerts/internal/service"
	"fuel-fraud-alerts/internal/storage"
)

// Analyze runs the detection engine over one date or an inclusive range,
// persisting new alerts unless dry-run is set.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	if opts.From.IsZero() {
		return errors.New("analysis date is required")
	}
	if opts.To.IsZero() {
		opts.To = opts.From
	}
	if opts.To.Before(opts.From) {
		return errors.New("--to must not be before --from")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot analyze")
	}
	defer closeStore()

	engine := a.newEngine(store)

	var alertStore storage.AlertStore
	if opts.DryRun {
		a.Logger.Warn().Msg("dry-run: alerts will not be written")
	} else {
		alertStore = store
	}

	svc := service.New(a.Config, nil, engine, alertStore, a.newNotifier(), a.Location(), a.Logger)

	processed := 0
	failed := 0
	for day := opts.From; !day.After(opts.To); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := svc.ProcessDay(ctx, day)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("day", day).Msg("analysis failed")
			continue
		}
		processed++
		fmt.Fprintf(os.Stdout, "%s: %d new alerts, %d suppressed\n",
			day.Format("2006-01-02"), len(result.Alerts), result.Suppressed)
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("analysis finished")
	if failed > 0 {
		return errors.New("some days failed to analyze; check the logs")
	}
	return nil
}
