package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type HeaderConfig struct {
	App     string
	Version string
	// Extras are appended after the version, e.g. the install root and the loader.
	Extras []string
}

var gradient = []string{
	"#89DCEB", "#99C9F5", "#B0B0FF", "#C49FFF", "#DB8AFF",
}

// HeaderText is the uncoloured banner line.
func HeaderText(cfg HeaderConfig) string {
	parts := append([]string{cfg.App, "v" + cfg.Version}, cfg.Extras...)
	return " " + strings.Join(parts, " | ")
}

// Header paints the banner over a pastel gradient exactly width cells wide. Without colour the
// plain text is returned unpadded.
func Header(cfg HeaderConfig, width int, colorize bool) string {
	plain := HeaderText(cfg)
	if !colorize {
		return plain
	}
	if width <= 0 {
		width = defaultWidth
	}

	runes := []rune(plain)
	var out strings.Builder
	for col := 0; col < width; col++ {
		background := gradient[col*len(gradient)/width]
		glyph := " "
		if col < len(runes) {
			glyph = string(runes[col])
		}
		foreground := "#FFFFFF"
		if isLight(background) {
			foreground = "#000000"
		}
		out.WriteString(lipgloss.NewStyle().
			Background(lipgloss.Color(background)).
			Foreground(lipgloss.Color(foreground)).
			Bold(true).
			Render(glyph))
	}
	return out.String()
}

// isLight uses Rec. 709 relative luminance.
func isLight(hex string) bool {
	r, g, b := hexToRGB(hex)
	return 0.2126*r+0.7152*g+0.0722*b > 0.5
}

func hexToRGB(hex string) (r, g, b float64) {
	channel := func(s string) float64 {
		v, _ := strconv.ParseUint(s, 16, 8)
		return float64(v) / 255
	}
	hex = strings.TrimPrefix(hex, "#")
	switch len(hex) {
	case 6:
		r, g, b = channel(hex[0:2]), channel(hex[2:4]), channel(hex[4:6])
	case 3:
		r = channel(strings.Repeat(string(hex[0]), 2))
		g = channel(strings.Repeat(string(hex[1]), 2))
		b = channel(strings.Repeat(string(hex[2]), 2))
	}
	return
}
