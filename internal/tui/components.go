package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader stacks a title over a muted subtitle, each cut to fit.
func renderHeader(title, subtitle string, width int) string {
	out := HeaderStyle.Render(truncateEnd(title, width-2))
	if subtitle == "" {
		return out
	}
	return out + "\n" + renderMuted(truncateEnd(subtitle, width-2))
}

// renderInputFrame boxes a text input; the border lights up while focused.
func renderInputFrame(inputView string, focused bool, contentWidth int) string {
	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder(), true).
		Padding(0, 1)
	if focused {
		frame = frame.BorderForeground(AccentColor)
	} else {
		frame = frame.BorderForeground(MutedColor)
	}
	return frame.Width(contentWidth + 4).Render(inputView)
}

func renderCentered(width, height int, content string) string {
	return lipgloss.Place(max(width, 0), max(height, 0), lipgloss.Center, lipgloss.Center, content)
}

func renderMuted(text string) string {
	return StatusInfoStyle.Render(text)
}

// renderHelp joins key hints into one italic line.
func renderHelp(hints ...string) string {
	return HelpStyle.Render(strings.Join(hints, " • "))
}
