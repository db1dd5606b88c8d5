package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconsAreUnstyledWhenNotColorized(t *testing.T) {
	assert.Equal(t, "✅", SuccessIcon(false))
	assert.Equal(t, "❌", ErrorIcon(false))
	assert.Equal(t, "⚠️", WarningIcon(false))
}

func TestIconsAreStyledWhenColorized(t *testing.T) {
	assert.Equal(t, SuccessStyle.Render("✅"), SuccessIcon(true))
	assert.Equal(t, ErrorStyle.Render("❌"), ErrorIcon(true))
	assert.Equal(t, WarningStyle.Render("⚠️"), WarningIcon(true))
}

func TestRenderLeavesPlainText(t *testing.T) {
	assert.Equal(t, "plain", Render(ErrorStyle, "plain", false))
}
