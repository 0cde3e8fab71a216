// Package tui renders the live session monitor behind `agentos ps --watch`.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/style"
)

// refreshInterval is how often the monitor re-reads the store.
const refreshInterval = 2 * time.Second

// SessionLister is the read surface the monitor needs.
type SessionLister interface {
	ListSessions() ([]*store.Session, error)
	ListProjects() ([]*store.Project, error)
}

type refreshMsg struct {
	sessions []*store.Session
	projects map[string]string
	err      error
}

// Model is the bubbletea model for the monitor.
type Model struct {
	lister SessionLister
	table  table.Model
	err    error
}

// NewModel creates the monitor model.
func NewModel(lister SessionLister) Model {
	cols := []table.Column{
		{Title: "Name", Width: 24},
		{Title: "Project", Width: 16},
		{Title: "Status", Width: 8},
		{Title: "Agent", Width: 8},
		{Title: "Branch", Width: 28},
		{Title: "Port", Width: 5},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true)
	t.SetStyles(s)
	return Model{lister: lister, table: t}
}

// Init schedules the first refresh.
func (m Model) Init() tea.Cmd {
	return m.refresh
}

func (m Model) refresh() tea.Msg {
	sessions, err := m.lister.ListSessions()
	if err != nil {
		return refreshMsg{err: err}
	}
	projects, err := m.lister.ListProjects()
	if err != nil {
		return refreshMsg{err: err}
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return refreshMsg{sessions: sessions, projects: names}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, m.refresh
	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tick()
		}
		m.err = nil
		rows := make([]table.Row, 0, len(msg.sessions))
		for _, s := range msg.sessions {
			port := ""
			if s.DevServerPort > 0 {
				port = fmt.Sprintf("%d", s.DevServerPort)
			}
			rows = append(rows, table.Row{
				s.Name, msg.projects[s.ProjectID], s.Status,
				s.AgentType, s.BranchName, port,
			})
		}
		m.table.SetRows(rows)
		return m, tick()
	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 4)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the monitor.
func (m Model) View() string {
	header := style.Header.Render("agentos sessions") +
		style.Dim.Render("  (q to quit)")
	body := m.table.View()
	if m.err != nil {
		body += "\n" + style.Dim.Render("refresh error: "+m.err.Error())
	}
	return header + "\n" + body + "\n"
}
