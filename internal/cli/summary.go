package cli

import (
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print alert and sale aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Summary(cmd.Context())
	},
}
