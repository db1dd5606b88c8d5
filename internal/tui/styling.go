package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.ANSIColor(termenv.ANSIBrightWhite)).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.ANSIColor(termenv.ANSIBrightGreen)).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.ANSIColor(termenv.ANSIBrightYellow)).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff0000")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	// RemediationStyle sets the steps the user has to take apart from the status line.
	RemediationStyle = lipgloss.NewStyle().
				PaddingLeft(3).
				Foreground(lipgloss.ANSIColor(termenv.ANSIBrightWhite))
)

// Render applies style only when colorize is set.
func Render(style lipgloss.Style, text string, colorize bool) string {
	if !colorize {
		return text
	}
	return style.Render(text)
}
