package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Status is an alert's lifecycle state. Pending is the only non-terminal
// state; an alert transitions at most once.
type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusFalsePositive Status = "false_positive"
)

var (
	// ErrNotFound indicates the resolution target does not exist.
	ErrNotFound = errors.New("lifecycle: alert not found")
	// ErrAlreadyResolved indicates the alert left Pending before this call.
	// The first resolution's fields stay untouched.
	ErrAlreadyResolved = errors.New("lifecycle: alert already resolved")
	// ErrInvalidTarget indicates the target state is not terminal.
	ErrInvalidTarget = errors.New("lifecycle: target state must be confirmed or false_positive")
)

// Valid reports whether the status is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFalsePositive:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFalsePositive
}

// ValidateTarget rejects any resolution target that is not terminal,
// Pending included.
func ValidateTarget(target Status) error {
	if !target.Valid() || !target.Terminal() {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	return nil
}

// Resolution records the outcome of a successful Resolve call.
type Resolution struct {
	AlertID    int64
	Status     Status
	ResolvedAt time.Time
	ResolvedBy int64
}

// Store applies a resolution with a compare-and-set guard on the current
// status, so concurrent resolves of one alert serialize to a single winner.
// Implementations return ErrNotFound or ErrAlreadyResolved accordingly.
type Store interface {
	ResolveAlert(ctx context.Context, alertID int64, target Status, userID int64, at time.Time) error
}

// Manager governs alert state transitions after creation.
type Manager struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager wires a Manager over a resolution store.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "lifecycle").Logger(),
		now:    time.Now,
	}
}

// Resolve moves a Pending alert to the given terminal state exactly once.
// A repeat call fails with ErrAlreadyResolved even when the target matches
// the stored state; persistence of the change is the store's concern.
func (m *Manager) Resolve(ctx context.Context, alertID int64, target Status, userID int64) (Resolution, error) {
	if err := ValidateTarget(target); err != nil {
		return Resolution{}, err
	}

	at := m.now().UTC()
	if err := m.store.ResolveAlert(ctx, alertID, target, userID, at); err != nil {
		return Resolution{}, err
	}

	m.logger.Info().
		Int64("alert_id", alertID).
		Str("status", string(target)).
		Int64("user_id", userID).
		Msg("alert resolved")

	return Resolution{
		AlertID:    alertID,
		Status:     target,
		ResolvedAt: at,
		ResolvedBy: userID,
	}, nil
}
