package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	instructionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#A8A8A8"))

	questionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EEEEEE")).
			PaddingLeft(2)

	cueCardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 2)

	timerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	timerLowStyle = timerStyle.
			Foreground(lipgloss.Color("#FF5F87"))

	transcriptStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#C0C0C0")).
			PaddingLeft(2)

	answeredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#D7005F")).
			Padding(0, 1)

	bandStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD700"))

	criterionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4"))
)
