// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/buildmatrix/buildmatrix/internal/config"
)

// Color palette shared by all CLI output. Each color has a variant for light
// and for dark terminals; ui.color_scheme pins one or leaves it to detection.
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#7C3AED"}
	ColorMuted     = lipgloss.AdaptiveColor{Light: "#4B5563", Dark: "#6B7280"}
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#10B981"}
	ColorError     = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#EF4444"}
	ColorWarning   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	ColorHighlight = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#3B82F6"}
)

var (
	// TitleStyle is for headers and section titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	// SubtitleStyle is for secondary text.
	SubtitleStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)

	// CmdStyle is for command names, keys and paths.
	CmdStyle = lipgloss.NewStyle().Foreground(ColorHighlight)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableBorderStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// applyColorScheme pins the palette variant for scheme and returns the
// glamour style issue guides are rendered with.
func applyColorScheme(scheme config.ColorScheme) string {
	switch scheme {
	case config.ColorSchemeDark:
		lipgloss.SetHasDarkBackground(true)
		return "dark"
	case config.ColorSchemeLight:
		lipgloss.SetHasDarkBackground(false)
		return "light"
	default:
		return "auto"
	}
}
