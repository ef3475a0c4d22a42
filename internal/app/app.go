package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fuel-fraud-alerts/internal/alerting"
	"fuel-fraud-alerts/internal/config"
	"fuel-fraud-alerts/internal/detection"
	"fuel-fraud-alerts/internal/scheduler"
	"fuel-fraud-alerts/internal/service"
	"fuel-fraud-alerts/internal/storage"
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

func (a *App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Config.Detection.Timezone)
	if err != nil {
		a.Logger.Warn().Str("timezone", a.Config.Detection.Timezone).Msg("unknown timezone; falling back to UTC")
		return time.UTC
	}
	return loc
}

func (a *App) detectionConfig() detection.Config {
	cfg := a.Config.Detection
	base := a.Config.Baseline
	return detection.Config{
		Workers:            cfg.Workers,
		RepoTimeout:        cfg.RepoTimeout,
		Location:           a.Location(),
		SigmaMultiple:      cfg.SigmaMultiple,
		VelocityWindow:     cfg.Velocity.Window,
		MaxFlowLPM:         cfg.Velocity.MaxFlowLPM,
		OffHoursGrace:      cfg.OffHoursGrace,
		RoundMultiple:      cfg.Round.Multiple,
		RoundMinShare:      cfg.Round.MinShare,
		RoundFactor:        cfg.Round.Factor,
		RoundMinSales:      cfg.Round.MinSales,
		PricePrecision:     cfg.PricePrecision,
		RunLength:          cfg.RunLength,
		MinBaselineSamples: base.MinSamples,
		DefaultPumps:       base.DefaultPumps,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, storage.Options{
		BaselineWindowDays: a.Config.Baseline.WindowDays,
		RoundMultiple:      a.Config.Detection.Round.Multiple,
		Timezone:           a.Config.Detection.Timezone,
	})
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newEngine(store *storage.Store) *detection.Engine {
	return detection.NewEngine(a.detectionConfig(), store, store, a.Logger)
}

// Run executes the long-running scheduled detection service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required for the detection service")
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		RunAt:        a.Config.Scheduler.RunAt,
		Location:     a.Location(),
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	engine := a.newEngine(store)
	svc := service.New(a.Config, sched, engine, store, a.newNotifier(), a.Location(), a.Logger)

	a.Logger.Info().Msg("starting detection service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("detection service stopped")
	return nil
}

// AnalyzeOptions configure an on-demand analysis of one date or a range.
type AnalyzeOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Status string
	Type   string
}

// ResolveOptions configure the resolve command.
type ResolveOptions struct {
	AlertID int64
	Status  string
	UserID  int64
}

// ExportOptions hold parameters for exporting daily activity.
type ExportOptions struct {
	From    *time.Time
	To      *time.Time
	PNGPath string
	CSVPath string
	MaxDays int
}

// SimulateOptions shape the synthetic station-day.
type SimulateOptions struct {
	Sales  int
	Notify bool
}
