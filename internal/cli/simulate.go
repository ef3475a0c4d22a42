package cli

import (
	"github.com/spf13/cobra"

	"fuel-fraud-alerts/internal/app"
)

var (
	simulateSales  int
	simulateNotify bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "模拟一个带异常的站点日并运行检测",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Sales:  simulateSales,
			Notify: simulateNotify,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateSales, "sales", 60, "合成销售数量")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "发送 Telegram 运行摘要")
}
