package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var (
	simulateTicker string
	simulateEntry  float64
	simulateATR    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "构造一条合成信号并触发告警，用于验证通知配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateEntry <= 0 || simulateATR <= 0 {
			return errors.New("--entry 与 --atr 必须大于 0")
		}
		ticker := strings.ToUpper(strings.TrimSpace(simulateTicker))
		if ticker == "" {
			ticker = "TEST"
		}
		return getApp().SimulateAlert(cmd.Context(), ticker, simulateEntry, simulateATR)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateTicker, "ticker", "TEST", "合成信号使用的代码")
	simulateCmd.Flags().Float64Var(&simulateEntry, "entry", 0, "入场价")
	simulateCmd.Flags().Float64Var(&simulateATR, "atr", 0, "ATR 值")
}
