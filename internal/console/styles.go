package console

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Accent  = lipgloss.Color("#7C3AED")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
	OK      = lipgloss.Color("#10B981")

	NoticeLabel = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	NoticeText = lipgloss.NewStyle().
			Foreground(Muted)

	ErrorLabel = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	StatusLine = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	Connected = lipgloss.NewStyle().
			Foreground(OK).
			Bold(true)

	// Disconnect panel
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Error).
		Padding(0, 1)

	PanelTitle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	PanelKey = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)
)
