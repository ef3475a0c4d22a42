package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fuel-fraud-alerts/internal/alerting"
	"fuel-fraud-alerts/internal/config"
	"fuel-fraud-alerts/internal/detection"
	"fuel-fraud-alerts/internal/scheduler"
	"fuel-fraud-alerts/internal/storage"
)

// Analyzer scans one calendar day and returns constructed alerts without
// persisting them.
type Analyzer interface {
	Analyze(ctx context.Context, day time.Time) ([]detection.Alert, error)
}

// RunResult reports the outcome of one analyzed day.
type RunResult struct {
	Day        time.Time
	Alerts     []detection.Alert
	Suppressed int
}

// Service owns the transactional write around the engine: it suppresses
// findings already persisted for the day, commits the remainder in one
// call, and notifies operators.
type Service struct {
	sched    *scheduler.Scheduler
	engine   Analyzer
	store    storage.AlertStore
	notifier alerting.Notifier
	logger   zerolog.Logger

	loc      *time.Location
	channels []string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// New constructs the detection service.
func New(cfg *config.Config, sched *scheduler.Scheduler, engine Analyzer, store storage.AlertStore, notifier alerting.Notifier, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		sched:    sched,
		engine:   engine,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
		loc:      loc,
		channels: cfg.Alerting.Channels,
		alertsOn: cfg.Alerting.Enabled,
		locker:   locker,
		lockKey:  cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the daily scheduled loop, analyzing the previous calendar day
// at each run time.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, func(ctx context.Context, firedAt time.Time) error {
		local := firedAt.In(s.loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, -1)
		_, err := s.ProcessDay(ctx, day)
		return err
	})
}

// ProcessDay analyzes one civil day and persists the alerts not already
// known for it. The engine result is committed in full or not at all.
func (s *Service) ProcessDay(ctx context.Context, day time.Time) (RunResult, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return RunResult{}, err
	}
	if !proceed {
		s.logger.Debug().Time("day", day).Msg("skip day because advisory lock held elsewhere")
		return RunResult{Day: day}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeDay(ctx, day)
}

func (s *Service) executeDay(ctx context.Context, day time.Time) (RunResult, error) {
	alerts, err := s.engine.Analyze(ctx, day)
	if err != nil {
		return RunResult{}, fmt.Errorf("analyze %s: %w", day.Format("2006-01-02"), err)
	}

	result := RunResult{Day: day, Alerts: alerts}

	if s.store != nil {
		fresh, suppressed, err := s.suppressKnown(ctx, day, alerts)
		if err != nil {
			return RunResult{}, err
		}
		result.Alerts = fresh
		result.Suppressed = suppressed

		if err := s.store.InsertAlerts(ctx, day, fresh); err != nil {
			return RunResult{}, fmt.Errorf("persist alerts: %w", err)
		}
	}

	s.logger.Info().
		Time("day", day).
		Int("new_alerts", len(result.Alerts)).
		Int("suppressed", result.Suppressed).
		Msg("day processed")

	if s.alertsOn && s.notifier != nil && len(result.Alerts) > 0 {
		if err := s.notifier.Notify(ctx, s.summarize(result)); err != nil {
			s.logger.Error().Err(err).Time("day", day).Msg("failed to dispatch run summary")
		}
	}

	return result, nil
}

// suppressKnown drops alerts whose (type, sale, station) key is already
// persisted for the day, so re-running an unchanged date writes nothing.
func (s *Service) suppressKnown(ctx context.Context, day time.Time, alerts []detection.Alert) ([]detection.Alert, int, error) {
	if len(alerts) == 0 {
		return alerts, 0, nil
	}

	known, err := s.store.ListAlertKeysForDay(ctx, day)
	if err != nil {
		return nil, 0, fmt.Errorf("list persisted alerts: %w", err)
	}
	if len(known) == 0 {
		return alerts, 0, nil
	}

	fresh := make([]detection.Alert, 0, len(alerts))
	suppressed := 0
	for _, alert := range alerts {
		if _, ok := known[storage.Key(alert)]; ok {
			suppressed++
			continue
		}
		fresh = append(fresh, alert)
	}
	return fresh, suppressed, nil
}

func (s *Service) summarize(result RunResult) alerting.RunSummary {
	byType := make(map[detection.AlertType]int)
	stations := make(map[int64]struct{})
	for _, alert := range result.Alerts {
		byType[alert.Type]++
		stations[alert.StationID] = struct{}{}
	}
	return alerting.RunSummary{
		Day:        result.Day,
		Stations:   len(stations),
		NewAlerts:  len(result.Alerts),
		Suppressed: result.Suppressed,
		ByType:     byType,
		Channels:   s.channels,
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
