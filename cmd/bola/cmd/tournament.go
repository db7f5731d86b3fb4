package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/bola/internal/client"
	"github.com/BioHazard786/bola/internal/ui"
)

var tournamentCmd = &cobra.Command{
	Use:   "tournament",
	Short: "Show the current tournament week and seed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		week, err := c.Tournament(cmd.Context())
		if errors.Is(err, client.ErrNotStarted) {
			ui.PrintWarning("The first tournament has not started yet.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.TournamentView(week, time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tournamentCmd)
}
