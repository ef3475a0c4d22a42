package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fuel-fraud-alerts/internal/app"
)

var (
	resolveID     int64
	resolveStatus string
	resolveUser   int64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a pending alert as confirmed or false positive",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveID <= 0 {
			return fmt.Errorf("--id must be provided")
		}
		if resolveUser <= 0 {
			return fmt.Errorf("--user must be provided")
		}

		opts := app.ResolveOptions{
			AlertID: resolveID,
			Status:  resolveStatus,
			UserID:  resolveUser,
		}

		return getApp().Resolve(cmd.Context(), opts)
	},
}

func init() {
	resolveCmd.Flags().Int64Var(&resolveID, "id", 0, "Alert identifier")
	resolveCmd.Flags().StringVar(&resolveStatus, "status", "", "Target status (confirmed or false_positive)")
	resolveCmd.Flags().Int64Var(&resolveUser, "user", 0, "Identifier of the resolving user")
}
