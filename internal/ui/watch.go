package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/bola/internal/leaderboard"
)

type boardUpdateMsg leaderboard.Update

type streamClosedMsg struct{}

// LeaderboardWatch is a bubbletea model that redraws a board on every
// update from the server.
type LeaderboardWatch struct {
	difficulty leaderboard.Difficulty
	updates    <-chan leaderboard.Update
	entries    []leaderboard.Entry
	spinner    spinner.Model
	received   int
	updatedAt  time.Time
	closed     bool
	quitting   bool
}

// NewLeaderboardWatch creates a model fed by updates.
func NewLeaderboardWatch(difficulty leaderboard.Difficulty, updates <-chan leaderboard.Update) LeaderboardWatch {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return LeaderboardWatch{
		difficulty: difficulty,
		updates:    updates,
		spinner:    s,
	}
}

// Closed reports whether the server ended the stream.
func (m LeaderboardWatch) Closed() bool { return m.closed }

func (m LeaderboardWatch) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func waitForUpdate(updates <-chan leaderboard.Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return streamClosedMsg{}
		}
		return boardUpdateMsg(update)
	}
}

func (m LeaderboardWatch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case boardUpdateMsg:
		m.entries = msg.Entries
		m.received++
		m.updatedAt = time.Now()
		return m, waitForUpdate(m.updates)

	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m LeaderboardWatch) View() string {
	if m.received == 0 {
		return fmt.Sprintf("%s Waiting for the %s leaderboard...\n", m.spinner.View(), m.difficulty)
	}

	view := LeaderboardView(m.difficulty, m.entries) + "\n"
	switch {
	case m.closed:
		view += FooterStyle.Render("stream closed by server") + "\n"
	case m.quitting:
	default:
		view += FooterStyle.Render(fmt.Sprintf("%s %s live, updated %s · press q to quit",
			m.spinner.View(), IconLive, m.updatedAt.Format(time.TimeOnly))) + "\n"
	}
	return view
}
