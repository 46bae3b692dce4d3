package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains the style definitions for the uploader.
type Styles struct {
	Title    lipgloss.Style
	Dim      lipgloss.Style
	Help     lipgloss.Style
	Main     lipgloss.Style
	Row      lipgloss.Style
	Cursor   lipgloss.Style
	Size     lipgloss.Style
	Alert    lipgloss.Style
	Loading  lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	Link     lipgloss.Style
	Box      lipgloss.Style
	Disabled lipgloss.Style
	Enabled  lipgloss.Style
}

func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1),
		Dim:     lipgloss.NewStyle().Faint(true),
		Help:    lipgloss.NewStyle().Faint(true).MarginTop(1),
		Main:    lipgloss.NewStyle().Padding(1, 2),
		Row:     lipgloss.NewStyle().PaddingLeft(2),
		Cursor:  lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		Size:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Alert:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // yellow
		Loading: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Bold(true), // green
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true), // red
		Link:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Underline(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.Color("241")),
		Disabled: lipgloss.NewStyle().Faint(true),
		Enabled:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
	}
}
