package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/bola/internal/leaderboard"
	"github.com/BioHazard786/bola/internal/ui"
)

var watch bool

var leaderboardCmd = &cobra.Command{
	Use:       "leaderboard <easy|normal|expert>",
	Short:     "Show a leaderboard",
	Aliases:   []string{"lb"},
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(leaderboard.Easy), string(leaderboard.Normal), string(leaderboard.Expert)},
	RunE: func(cmd *cobra.Command, args []string) error {
		difficulty, err := leaderboard.ParseDifficulty(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		if !watch {
			stop := ui.RunConnectionSpinner("Fetching leaderboard...")
			entries, err := c.Leaderboard(cmd.Context(), difficulty)
			stop()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.LeaderboardView(difficulty, entries))
			return nil
		}

		stream, err := c.WatchLeaderboard(cmd.Context(), difficulty)
		if err != nil {
			return err
		}
		defer stream.Close()

		model, err := tea.NewProgram(
			ui.NewLeaderboardWatch(difficulty, stream.Updates()),
			tea.WithContext(cmd.Context()),
		).Run()
		if err != nil && cmd.Context().Err() == nil {
			return err
		}
		if watchModel, ok := model.(ui.LeaderboardWatch); ok && watchModel.Closed() {
			ui.PrintWarning("The server closed the leaderboard stream.")
		}
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep the board open and redraw on every change")
	rootCmd.AddCommand(leaderboardCmd)
}
