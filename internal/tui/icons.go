package tui

func SuccessIcon(colorize bool) string {
	return Render(SuccessStyle, "✅", colorize)
}

func ErrorIcon(colorize bool) string {
	return Render(ErrorStyle, "❌", colorize)
}

func WarningIcon(colorize bool) string {
	return Render(WarningStyle, "⚠️", colorize)
}
