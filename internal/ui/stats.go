package ui

import (
	"fmt"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/bola/internal/leaderboard"
	"github.com/BioHazard786/bola/internal/server"
)

// StatsView renders server counters with go-pretty.
func StatsView(stats *server.Stats) string {
	t := prettytable.NewWriter()
	t.SetTitle("bola server " + stats.Version)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{IconRoom + " Rooms", stats.Sessions},
		{IconPeer + " Joined peers", stats.Peers},
		{"Capacity", stats.Capacity},
	})
	t.AppendSeparator()
	for _, d := range leaderboard.Difficulties {
		t.AppendRow(prettytable.Row{fmt.Sprintf("%s %s watchers", IconLive, d), stats.Leaderboards[d]})
	}
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}
