package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var (
	blacklistReason string
	blacklistDays   int
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the ticker blacklist",
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <ticker>",
	Short: "Blacklist a ticker until the expiry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		if ticker == "" {
			return errors.New("ticker is required")
		}
		return getApp().BlacklistAdd(cmd.Context(), ticker, blacklistReason, blacklistDays)
	},
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove <ticker>",
	Short: "Lift a blacklist entry early",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		if ticker == "" {
			return errors.New("ticker is required")
		}
		return getApp().BlacklistRemove(cmd.Context(), ticker)
	},
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all blacklist entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().BlacklistList(cmd.Context())
	},
}

func init() {
	blacklistAddCmd.Flags().StringVar(&blacklistReason, "reason", "", "Why the ticker is excluded")
	blacklistAddCmd.Flags().IntVar(&blacklistDays, "days", 90, "Days until the entry expires")

	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)
	blacklistCmd.AddCommand(blacklistListCmd)
}
