package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/m8test/m8link/pkg/client"
	"github.com/muesli/termenv"
)

const baseBGHex = "#0F172A"

// Run shows the console for c until the user quits. When connect is set
// the log stream is opened before the first frame.
func Run(ctx context.Context, c *client.Client, noColor, connect bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !noColor {
		prevBg := termenv.BackgroundColor()
		termenv.SetBackgroundColor(termenv.RGBColor(baseBGHex))
		if prevBg != nil {
			defer termenv.SetBackgroundColor(prevBg)
		}
	}

	m := New(ctx, c, noColor)
	m.autoConnect = connect

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
