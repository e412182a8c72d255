// Package dashboard renders a live terminal view of the session registry,
// refreshed on a ticker, read-only over session.Registry.Snapshot.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sessiondriver/sessiondriver/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6")).Padding(0, 1)
	headerRow  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A1A1AA"))
	idleSoon   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52525B")).Padding(1, 0, 0)
)

// keyMap defines the dashboard's key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Row is one session's display fields, computed from a session.Browser
// snapshot by snapshotRows so this package never imports internal/types or
// internal/launcher directly beyond what Registry.Snapshot exposes.
type Row struct {
	ID            string
	Address       string
	PID           int
	Age           time.Duration
	IdleRemaining time.Duration
}

type tickMsg time.Time

// Model is the bubbletea model for the live session view.
type Model struct {
	registry *session.Registry
	refresh  time.Duration
	rows     []Row
	quitting bool
}

// New returns a Model that polls registry every refresh interval.
func New(registry *session.Registry, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = time.Second
	}
	return Model{registry: registry, refresh: refresh}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick(m.refresh)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.rows = snapshotRows(m.registry)
		return m, tick(m.refresh)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("sessiondriver — %d active session(s)", len(m.rows))))
	b.WriteString("\n\n")
	b.WriteString(headerRow.Render(fmt.Sprintf("%-38s %-22s %-8s %-10s %s", "SESSION ID", "ADDRESS", "PID", "AGE", "IDLE-REMAINING")))
	b.WriteString("\n")

	for _, row := range m.rows {
		idle := row.IdleRemaining.Round(time.Second)
		idleText := idle.String()
		if idle < 0 {
			idleText = "expiring"
		}
		line := fmt.Sprintf("%-38s %-22s %-8d %-10s %s", row.ID, row.Address, row.PID, row.Age.Round(time.Second), idleText)
		if idle < time.Minute {
			b.WriteString(idleSoon.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(keys.Quit.Help().Key + ": " + keys.Quit.Help().Desc))
	return b.String()
}

func snapshotRows(registry *session.Registry) []Row {
	browsers := registry.Snapshot()
	rows := make([]Row, 0, len(browsers))
	for _, b := range browsers {
		pid := 0
		if b.Process != nil {
			pid = b.Process.PID()
		}
		rows = append(rows, Row{
			ID:            b.ID.String(),
			Address:       b.Address,
			PID:           pid,
			Age:           time.Since(b.CreatedAt),
			IdleRemaining: b.IdleRemaining(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].IdleRemaining < rows[j].IdleRemaining })
	return rows
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Run starts the TUI program and blocks until the user quits.
func Run(registry *session.Registry, refresh time.Duration) error {
	p := tea.NewProgram(New(registry, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
