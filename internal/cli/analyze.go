package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fuel-fraud-alerts/internal/app"
	"fuel-fraud-alerts/internal/detection"
)

var (
	analyzeDate   string
	analyzeFrom   string
	analyzeTo     string
	analyzeDryRun bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one date or a date range on demand",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		loc := a.Location()

		opts := app.AnalyzeOptions{DryRun: analyzeDryRun}

		switch {
		case analyzeDate != "":
			if analyzeFrom != "" || analyzeTo != "" {
				return fmt.Errorf("--date cannot be combined with --from/--to")
			}
			day, err := detection.ParseDay(analyzeDate, loc)
			if err != nil {
				return err
			}
			opts.From = day
			opts.To = day
		case analyzeFrom != "":
			from, err := detection.ParseDay(analyzeFrom, loc)
			if err != nil {
				return err
			}
			opts.From = from
			opts.To = from
			if analyzeTo != "" {
				to, err := detection.ParseDay(analyzeTo, loc)
				if err != nil {
					return err
				}
				opts.To = to
			}
		default:
			return fmt.Errorf("one of --date or --from must be provided")
		}

		return a.Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "Single date to analyze (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeFrom, "from", "", "Range start (YYYY-MM-DD, inclusive)")
	analyzeCmd.Flags().StringVar(&analyzeTo, "to", "", "Range end (YYYY-MM-DD, inclusive)")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Report alerts without persisting them")
}
