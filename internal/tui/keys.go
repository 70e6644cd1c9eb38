package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console's key bindings
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Bottom     key.Binding
	SwitchTab  key.Binding
	CycleLevel key.Binding
	Search     key.Binding
	Clear      key.Binding
	ClearAll   key.Binding
	Connect    key.Binding
	Disconnect key.Binding
	Start      key.Binding
	Interrupt  key.Binding
	Quit       key.Binding

	// Prompt mode
	Submit key.Binding
	Cancel key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "follow"),
	),
	SwitchTab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "script/plugin"),
	),
	CycleLevel: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "level"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear tab"),
	),
	ClearAll: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "clear all"),
	),
	Connect: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "connect"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Interrupt: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "interrupt"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
	),
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.SwitchTab, k.CycleLevel, k.Search, k.Clear, k.Connect,
		k.Disconnect, k.Start, k.Interrupt, k.Quit,
	}
}
