package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"walletscope/internal/app"
)

var (
	analyzeAddress string
	analyzeExpand  bool
	analyzeOut     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a one-shot forensic analysis for an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeAddress == "" {
			return fmt.Errorf("--address is required")
		}

		opts := app.AnalyzeOptions{
			Address: analyzeAddress,
			Expand:  analyzeExpand,
			OutPath: analyzeOut,
		}

		return getApp().Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeAddress, "address", "", "Wallet address to analyze")
	analyzeCmd.Flags().BoolVar(&analyzeExpand, "expand", false, "Enable multi-hop cluster expansion")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "Write the full JSON report to this path")
}
