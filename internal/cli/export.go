package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fuel-fraud-alerts/internal/app"
	"fuel-fraud-alerts/internal/detection"
)

var (
	exportFrom    string
	exportTo      string
	exportPNGPath string
	exportCSVPath string
	exportMaxDays int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily sale volume and alert counts as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
			MaxDays: exportMaxDays,
		}

		if exportFrom != "" {
			from, err := detection.ParseDay(exportFrom, nil)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := detection.ParseDay(exportTo, nil)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Range start (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Range end (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxDays, "max-days", 0, "Maximum days to export (defaults to config)")
}
