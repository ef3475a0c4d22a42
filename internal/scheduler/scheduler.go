package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per scheduled daily run with the fire time.
type TickFunc func(ctx context.Context, firedAt time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// RunAt is the local wall-clock time of the daily run, "HH:MM".
	RunAt        string
	Location     *time.Location
	StartupDelay time.Duration
}

// Scheduler drives the daily analysis run.
type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	delay  time.Duration
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	at, err := time.Parse("15:04", opts.RunAt)
	if err != nil {
		return nil, fmt.Errorf("parse run_at: %w", err)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		hour:   at.Hour(),
		minute: at.Minute(),
		loc:    loc,
		delay:  opts.StartupDelay,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Run blocks, invoking the tick function at each daily run time until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		next := s.nextRun(time.Now().In(s.loc))
		timer := time.NewTimer(time.Until(next))
		s.logger.Debug().Time("next_run", next).Msg("waiting for next daily run")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case firedAt := <-timer.C:
			timer.Stop()
			s.logger.Info().Time("fired_at", firedAt).Msg("executing scheduled run")
			if err := tick(ctx, next); err != nil {
				s.logger.Error().Err(err).Time("run", next).Msg("scheduled run failed")
			}
		}
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
