package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fuel-fraud-alerts/internal/app"
)

var (
	showLimit  int
	showStatus string
	showType   string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent fraud alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Status: showStatus,
			Type:   showType,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of alerts to display")
	showCmd.Flags().StringVar(&showStatus, "status", "", "Filter by status (pending, confirmed, false_positive)")
	showCmd.Flags().StringVar(&showType, "type", "", "Filter by alert type")
}
