package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5"

	"fuel-fraud-alerts/internal/storage"
	"fuel-fraud-alerts/internal/validate"
)

// StationOptions describe a station to register.
type StationOptions struct {
	Name     string
	Location string
	Code     string
	Pumps    int
}

// ListStations prints the active station roster.
func (a *App) ListStations(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	stations, err := store.ListActiveStations(ctx)
	if err != nil {
		return err
	}
	if len(stations) == 0 {
		fmt.Fprintln(os.Stdout, "no active stations")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tCode\tName\tLocation\tPumps")
	for _, st := range stations {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%d\n", st.ID, st.Code, st.Name, st.Location, st.Pumps)
	}
	writer.Flush()
	return nil
}

// AddStation registers a new station after validating its code.
func (a *App) AddStation(ctx context.Context, opts StationOptions) error {
	if err := validate.StationCode(opts.Code); err != nil {
		return err
	}
	if opts.Name == "" {
		return errors.New("--name is required")
	}
	if opts.Pumps <= 0 {
		opts.Pumps = a.Config.Baseline.DefaultPumps
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	station, err := store.CreateStation(ctx, storage.Station{
		Name:     opts.Name,
		Location: opts.Location,
		Code:     opts.Code,
		Pumps:    opts.Pumps,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "station %d (%s) registered\n", station.ID, station.Code)
	return nil
}

// DeactivateStation soft-deletes a station; its sales and alerts remain.
func (a *App) DeactivateStation(ctx context.Context, stationID int64) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeactivateStation(ctx, stationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("station %d does not exist or is already inactive", stationID)
		}
		return err
	}

	fmt.Fprintf(os.Stdout, "station %d deactivated; history retained\n", stationID)
	return nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database not configured")
	}
	return store, closeStore, nil
}
