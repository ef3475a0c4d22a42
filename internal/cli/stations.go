package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fuel-fraud-alerts/internal/app"
)

var (
	stationName     string
	stationLocation string
	stationCode     string
	stationPumps    int
	stationID       int64
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Manage the station roster",
}

var stationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active stations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListStations(cmd.Context())
	},
}

var stationsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a station",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.StationOptions{
			Name:     stationName,
			Location: stationLocation,
			Code:     stationCode,
			Pumps:    stationPumps,
		}
		return getApp().AddStation(cmd.Context(), opts)
	},
}

var stationsDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Soft-delete a station, keeping its history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if stationID <= 0 {
			return fmt.Errorf("--id must be provided")
		}
		return getApp().DeactivateStation(cmd.Context(), stationID)
	},
}

func init() {
	stationsAddCmd.Flags().StringVar(&stationName, "name", "", "Station display name")
	stationsAddCmd.Flags().StringVar(&stationLocation, "location", "", "Station location")
	stationsAddCmd.Flags().StringVar(&stationCode, "code", "", "Immutable station code (EST-NNN or EST-NNNN)")
	stationsAddCmd.Flags().IntVar(&stationPumps, "pumps", 0, "Number of pumps (defaults to config)")

	stationsDeactivateCmd.Flags().Int64Var(&stationID, "id", 0, "Station identifier")

	stationsCmd.AddCommand(stationsListCmd)
	stationsCmd.AddCommand(stationsAddCmd)
	stationsCmd.AddCommand(stationsDeactivateCmd)
}
