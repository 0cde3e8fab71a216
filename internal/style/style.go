// Package style centralizes terminal styling for the CLI and TUI.
package style

import "github.com/charmbracelet/lipgloss"

// Base styles.
var (
	Bold   = lipgloss.NewStyle().Bold(true)
	Dim    = lipgloss.NewStyle().Faint(true)
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// Status colors keyed by session status.
var statusStyles = map[string]lipgloss.Style{
	"idle":    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	"running": lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	"waiting": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
}

// RenderStatus colors a status word.
func RenderStatus(status string) string {
	if s, ok := statusStyles[status]; ok {
		return s.Render(status)
	}
	return status
}
