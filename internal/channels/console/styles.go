package console

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("39")  // Blue
	secondaryColor = lipgloss.Color("245") // Gray
	errorColor     = lipgloss.Color("196") // Red
	warningColor   = lipgloss.Color("214") // Orange
)

var (
	focusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	unfocusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // Cyan
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")) // Light yellow

	reminderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("105")) // Purple

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true)

	logDebugStyle = lipgloss.NewStyle().Foreground(secondaryColor)
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(warningColor)
	logErrorStyle = lipgloss.NewStyle().Foreground(errorColor)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Italic(true)
)

func logStyleFor(level string) lipgloss.Style {
	switch level {
	case "DEBUG":
		return logDebugStyle
	case "WARN":
		return logWarnStyle
	case "ERROR", "FATAL":
		return logErrorStyle
	}
	return logInfoStyle
}
