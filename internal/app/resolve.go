package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"fuel-fraud-alerts/internal/lifecycle"
)

// Resolve moves a pending alert to a terminal state.
func (a *App) Resolve(ctx context.Context, opts ResolveOptions) error {
	target := lifecycle.Status(opts.Status)
	if err := lifecycle.ValidateTarget(target); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot resolve alerts")
	}
	defer closeStore()

	mgr := lifecycle.NewManager(store, a.Logger)
	res, err := mgr.Resolve(ctx, opts.AlertID, target, opts.UserID)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return fmt.Errorf("alert %d does not exist", opts.AlertID)
	case errors.Is(err, lifecycle.ErrAlreadyResolved):
		return fmt.Errorf("alert %d was already resolved; resolution is final", opts.AlertID)
	case err != nil:
		return err
	}

	fmt.Fprintf(os.Stdout, "alert %d resolved as %s by user %d at %s\n",
		res.AlertID, res.Status, res.ResolvedBy, res.ResolvedAt.Format(time.RFC3339))
	return nil
}
