package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/bola/internal/leaderboard"
	"github.com/BioHazard786/bola/internal/tournament"
)

// LeaderboardView renders a board using lipgloss/table. The leader's row is
// highlighted.
func LeaderboardView(difficulty leaderboard.Difficulty, entries []leaderboard.Entry) string {
	title := TitleStyle.Render(fmt.Sprintf("%s %s leaderboard", IconTrophy, strings.ToUpper(string(difficulty))))
	if len(entries) == 0 {
		return title + "\n" + MutedStyle.Render("No scores yet")
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{fmt.Sprintf("%d", i+1), e.Username, fmt.Sprintf("%d", e.Score)}
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Player", "Score").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row == 0:
				return TableLeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return title + "\n" + tbl.Render()
}

// TournamentView renders the current tournament week in a box.
func TournamentView(week *tournament.Week, now time.Time) string {
	end := time.Unix(week.EndTime, 0)
	content := fmt.Sprintf("%s Week %d\n\n%s Seed:     %s\n%s Started:  %s\n%s Ends in:  %s",
		IconTrophy, week.Week,
		IconSeed, BoldStyle.Foreground(Primary).Render(fmt.Sprintf("%d", week.Seed)),
		IconTime, time.Unix(week.StartTime, 0).UTC().Format(time.RFC1123),
		IconTime, MutedStyle.Render(end.Sub(now).Truncate(time.Minute).String()),
	)
	return InfoBoxStyle.Render(content)
}
