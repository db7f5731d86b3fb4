package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/bola/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live room and leaderboard counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		stop := ui.RunConnectionSpinner("Fetching server stats...")
		stats, err := c.Stats(cmd.Context())
		stop()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.StatsView(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
