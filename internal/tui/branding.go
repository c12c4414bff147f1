package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/consult/internal/config"
)

const AppName = "consult"

const Tagline = "Consultation Response Explorer"

var LogoLines = []string{
	" ▄▄▄▄  ▄▄▄▄  ▄▄  ▄  ▄▄▄▄ ▄   ▄ ▄    ▄▄▄▄▄",
	"██▀▀  ██  ██ ███ █ ██▀▀  █   █ █      █  ",
	"██    ██  ██ █ ███  ▀▀██ █   █ █      █  ",
	" ▀▀▀▀  ▀▀▀▀  ▀  ▀▀ ▀▀▀▀   ▀▀▀  ▀▀▀▀  ▀  ",
}

const CompactLogo = `consult ›`

var BannerColors = []lipgloss.Color{
	lipgloss.Color("#4ECDC4"),
	lipgloss.Color("#95E1D3"),
	lipgloss.Color("#FFE66D"),
	lipgloss.Color("#FF6B6B"),
}

var (
	PrimaryColor   = lipgloss.Color("#FF6B6B")
	SecondaryColor = lipgloss.Color("#4ECDC4")
	AccentColor    = lipgloss.Color("#95E1D3")

	BackgroundColor = lipgloss.Color("#1A1A2E")
	SurfaceColor    = lipgloss.Color("#16213E")
	TextColor       = lipgloss.Color("#EAEAEA")
	MutedColor      = lipgloss.Color("#94A3B8")

	// Stance colours
	AgreeColor    = lipgloss.Color("#4ADE80")
	DisagreeColor = lipgloss.Color("#F87171")
	StarColor     = lipgloss.Color("#FFE66D")
	ErrorColor    = lipgloss.Color("#F87171")
	SuccessColor  = lipgloss.Color("#4ADE80")
)

var (
	LogoStyle          lipgloss.Style
	TitleStyle         lipgloss.Style
	HeaderStyle        lipgloss.Style
	StatusBarStyle     lipgloss.Style
	FavouriteStyle     lipgloss.Style
	SelectedFacetStyle lipgloss.Style
	HelpStyle          lipgloss.Style
	SeparatorStyle     lipgloss.Style
	StatusInfoStyle    lipgloss.Style
	StatusSuccessStyle lipgloss.Style
	StatusWarnStyle    lipgloss.Style
	StatusErrorStyle   lipgloss.Style
)

func init() {
	buildStyles()
}

// ApplyColors overrides the palette from configuration. Empty values keep
// the built-in colour.
func ApplyColors(c config.UIColors) {
	set := func(dst *lipgloss.Color, v string) {
		if v != "" {
			*dst = lipgloss.Color(v)
		}
	}
	set(&PrimaryColor, c.Primary)
	set(&SecondaryColor, c.Secondary)
	set(&AccentColor, c.Accent)
	set(&BackgroundColor, c.Background)
	set(&SurfaceColor, c.Surface)
	set(&TextColor, c.Text)
	set(&MutedColor, c.Muted)
	set(&ErrorColor, c.Error)
	set(&SuccessColor, c.Success)
	buildStyles()
}

func buildStyles() {
	LogoStyle = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	TitleStyle = lipgloss.NewStyle().
		Foreground(TextColor).
		Background(SurfaceColor).
		Bold(true).
		Padding(0, 2)
	HeaderStyle = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	StatusBarStyle = lipgloss.NewStyle().Foreground(MutedColor).Padding(0, 1)
	FavouriteStyle = lipgloss.NewStyle().Foreground(StarColor).Bold(true)
	SelectedFacetStyle = lipgloss.NewStyle().Foreground(AccentColor).Bold(true)
	HelpStyle = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
	SeparatorStyle = lipgloss.NewStyle().Foreground(MutedColor)
	StatusInfoStyle = lipgloss.NewStyle().Foreground(MutedColor)
	StatusSuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	StatusWarnStyle = lipgloss.NewStyle().Foreground(StarColor)
	StatusErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
}

// stanceStyle colours a stance label by its code.
func stanceStyle(code string) lipgloss.Style {
	switch code {
	case "AGREEMENT":
		return lipgloss.NewStyle().Foreground(AgreeColor)
	case "DISAGREEMENT":
		return lipgloss.NewStyle().Foreground(DisagreeColor)
	default:
		return lipgloss.NewStyle().Foreground(MutedColor)
	}
}

func GetWelcomeMessage(hint string) string {
	return GetCompactBanner(hint)
}

func GetCompactBanner(message string) string {
	var coloredLines []string
	for _, line := range LogoLines {
		coloredLines = append(coloredLines, LogoStyle.Render(line))
	}

	return lipgloss.JoinVertical(
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, coloredLines...),
		"",
		HelpStyle.Render(message),
	)
}

// ShowBanner writes the startup banner to w.
func ShowBanner(w io.Writer, version string) {
	lines := make([]string, len(LogoLines)+1)
	copy(lines, LogoLines)

	tagline := "    " + Tagline
	if version != "" && version != "dev" {
		if version[0] != 'v' && version[0] != 'V' {
			version = "v" + version
		}
		tagline += " " + version
	}
	lines = append(lines, tagline)

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(BannerColors[i%len(BannerColors)]).
			Bold(i < len(LogoLines))
		coloredLines = append(coloredLines, style.Render(line))
	}

	border := lipgloss.Border{
		Top:         "═",
		Bottom:      "═",
		Left:        "║",
		Right:       "║",
		TopLeft:     "╔",
		TopRight:    "╗",
		BottomLeft:  "╚",
		BottomRight: "╝",
	}

	banner := lipgloss.NewStyle().
		Border(border).
		BorderForeground(SecondaryColor).
		Padding(1, 3).
		MarginTop(1).
		Render(lipgloss.JoinVertical(lipgloss.Center, coloredLines...))

	fmt.Fprintln(w, lipgloss.NewStyle().Width(70).Align(lipgloss.Center).Render(banner))
	fmt.Fprintln(w, lipgloss.NewStyle().
		Width(70).
		Align(lipgloss.Center).
		MarginBottom(1).
		Render(SeparatorStyle.Render("◆ ◇ ◆ ◇ ◆")))
}
