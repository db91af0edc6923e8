package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"walletscope/internal/app"
)

var watchAddress string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze an address periodically and alert on risk threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchAddress == "" {
			return fmt.Errorf("--address is required")
		}

		return getApp().Watch(cmd.Context(), app.WatchOptions{Address: watchAddress})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddress, "address", "", "Wallet address to watch")
}
