package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/m8test/m8link/pkg/logview"
)

type uiStyles struct {
	header   lipgloss.Style
	active   lipgloss.Style
	inactive lipgloss.Style
	muted    lipgloss.Style
	good     lipgloss.Style
	warn     lipgloss.Style
	bad      lipgloss.Style
	status   lipgloss.Style
	levels   logview.Styles
}

func buildStyles(noColor bool) uiStyles {
	levels := logview.NewStyles(lipgloss.DefaultRenderer(), noColor)
	if noColor {
		return uiStyles{
			header:   lipgloss.NewStyle().Bold(true),
			active:   lipgloss.NewStyle().Bold(true).Underline(true),
			inactive: lipgloss.NewStyle(),
			muted:    lipgloss.NewStyle(),
			good:     lipgloss.NewStyle(),
			warn:     lipgloss.NewStyle(),
			bad:      lipgloss.NewStyle(),
			status:   lipgloss.NewStyle(),
			levels:   levels,
		}
	}

	accent := lipgloss.Color("#22D3EE")
	muted := lipgloss.Color("#94A3B8")

	return uiStyles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		active:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0F172A")).Background(accent).Padding(0, 1),
		inactive: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		muted:    lipgloss.NewStyle().Foreground(muted),
		good:     lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
		bad:      lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
		status:   lipgloss.NewStyle().Foreground(muted),
		levels:   levels,
	}
}
