// Package tui is the interactive console: script and plugin log tabs,
// level and search filters, stream connection control and the start and
// interrupt commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/m8test/m8link/pkg/client"
	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/logview"
	"github.com/m8test/m8link/pkg/stream"
)

const tickInterval = 200 * time.Millisecond

type inputMode int

const (
	modeNormal inputMode = iota
	modeSearch
	modeArgument
)

type (
	snapshotMsg  client.Snapshot
	closedMsg    struct{}
	tickMsg      time.Time
	updateMsg    struct{}
	streamErrMsg struct{ err error }
	resultMsg    struct {
		action string
		err    error
	}
)

// levelCycle is the order the level key steps through.
var levelCycle = append([]common.Level{logview.LevelAll}, common.Levels...)

// Model is the bubbletea model of the console
type Model struct {
	ctx    context.Context
	client *client.Client
	keys   KeyMap
	styles uiStyles

	help     help.Model
	input    textinput.Model
	viewport viewport.Model

	snap   client.Snapshot
	tab    logview.Destination
	mode   inputMode
	dirty  bool
	follow bool
	errCh  chan error

	autoConnect bool

	status    string
	statusErr bool
	width     int
	height    int
}

// New builds a console model driving c.
func New(ctx context.Context, c *client.Client, noColor bool) *Model {
	m := &Model{
		ctx:      ctx,
		client:   c,
		keys:     DefaultKeyMap,
		styles:   buildStyles(noColor),
		help:     help.New(),
		input:    textinput.New(),
		viewport: viewport.New(80, 20),
		tab:      logview.DestScript,
		follow:   true,
		errCh:    make(chan error, 16),
	}
	m.input.CharLimit = 256
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		requestSnapshot(m.ctx, m.client),
		scheduleTick(),
		waitForUpdate(m.client.Updates()),
		waitForStreamError(m.errCh),
	}
	if m.autoConnect {
		cmds = append(cmds, connectCmd(m.ctx, m.client, m.errCh))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshContent()
		return m, nil

	case snapshotMsg:
		m.snap = client.Snapshot(msg)
		m.refreshContent()
		return m, nil

	case closedMsg:
		return m, tea.Quit

	case updateMsg:
		m.dirty = true
		return m, waitForUpdate(m.client.Updates())

	case tickMsg:
		if m.dirty {
			m.dirty = false
			return m, tea.Batch(requestSnapshot(m.ctx, m.client), scheduleTick())
		}
		return m, scheduleTick()

	case streamErrMsg:
		m.setStatus(msg.err.Error(), true)
		return m, waitForStreamError(m.errCh)

	case resultMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.setStatus(msg.action+" ok", false)
		}
		return m, requestSnapshot(m.ctx, m.client)

	case tea.KeyMsg:
		if m.mode != modeNormal {
			return m.updatePrompt(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m *Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.SwitchTab):
		if m.tab == logview.DestScript {
			m.tab = logview.DestPlugin
		} else {
			m.tab = logview.DestScript
		}
		m.follow = true
		m.refreshContent()
		return m, nil

	case key.Matches(msg, m.keys.CycleLevel):
		m.client.SetFilter(nextLevel(m.snap.Filter.Level))
		return m, requestSnapshot(m.ctx, m.client)

	case key.Matches(msg, m.keys.Search):
		m.openPrompt(modeSearch, "/", "search", m.snap.Filter.Query)
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Clear):
		m.client.Clear(m.tab)
		m.setStatus("cleared "+string(m.tab), false)
		return m, requestSnapshot(m.ctx, m.client)

	case key.Matches(msg, m.keys.ClearAll):
		m.client.ClearAll()
		m.setStatus("cleared all", false)
		return m, requestSnapshot(m.ctx, m.client)

	case key.Matches(msg, m.keys.Connect):
		m.setStatus("connecting...", false)
		return m, connectCmd(m.ctx, m.client, m.errCh)

	case key.Matches(msg, m.keys.Disconnect):
		m.client.DisconnectStream()
		m.setStatus("disconnected", false)
		return m, requestSnapshot(m.ctx, m.client)

	case key.Matches(msg, m.keys.Start):
		m.openPrompt(modeArgument, "argument> ", "optional, enter to start", "")
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Interrupt):
		return m, interruptCmd(m.ctx, m.client)

	case key.Matches(msg, m.keys.Bottom):
		m.follow = true
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m *Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.closePrompt()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		mode, value := m.mode, m.input.Value()
		m.closePrompt()
		if mode == modeSearch {
			m.client.SetSearch(strings.TrimSpace(value))
			return m, requestSnapshot(m.ctx, m.client)
		}
		return m, startCmd(m.ctx, m.client, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) openPrompt(mode inputMode, prompt, placeholder, value string) {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) closePrompt() {
	m.mode = modeNormal
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) resize() {
	// header, status and footer take one line each
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.help.Width = m.width
	m.input.Width = m.width - len(m.input.Prompt) - 1
}

func (m *Model) refreshContent() {
	records := m.snap.Rendered(m.tab)
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = m.styles.levels.Render(r)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	if m.mode != modeNormal {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

func (m *Model) headerView() string {
	tabs := make([]string, 0, len(logview.Destinations))
	for _, dest := range logview.Destinations {
		label := fmt.Sprintf("%s (%d)", dest, m.total(dest))
		if dest == m.tab {
			tabs = append(tabs, m.styles.active.Render(label))
		} else {
			tabs = append(tabs, m.styles.inactive.Render(label))
		}
	}

	filter := fmt.Sprintf("level=%s", m.snap.Filter.Level)
	if m.snap.Filter.Query != "" {
		filter += fmt.Sprintf(" search=%q", m.snap.Filter.Query)
	}

	return strings.Join([]string{
		m.styles.header.Render("m8link"),
		strings.Join(tabs, " "),
		m.connectionView(),
		m.styles.muted.Render(filter),
	}, "  ")
}

func (m *Model) connectionView() string {
	switch m.snap.State {
	case stream.StateConnected:
		return m.styles.good.Render("● connected")
	case stream.StateConnecting:
		return m.styles.warn.Render("◌ connecting")
	default:
		return m.styles.bad.Render("○ disconnected")
	}
}

func (m *Model) statusView() string {
	if m.status == "" {
		return m.styles.status.Render(fmt.Sprintf("stream errors: %d  plugin drops: %d", m.snap.StreamErrors, m.snap.PluginDrops))
	}
	if m.statusErr {
		return m.styles.bad.Render(m.status)
	}
	return m.styles.status.Render(m.status)
}

func (m *Model) total(dest logview.Destination) int {
	if dest == logview.DestPlugin {
		return m.snap.PluginTotal
	}
	return m.snap.ScriptTotal
}

func nextLevel(current common.Level) common.Level {
	for i, l := range levelCycle {
		if l == current {
			return levelCycle[(i+1)%len(levelCycle)]
		}
	}
	return levelCycle[0]
}

func requestSnapshot(ctx context.Context, c *client.Client) tea.Cmd {
	return func() tea.Msg {
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return updateMsg{}
	}
}

func waitForStreamError(errCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		return streamErrMsg{err: <-errCh}
	}
}

func connectCmd(ctx context.Context, c *client.Client, errCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := c.ConnectStream(ctx, nil, func(err error) {
			select {
			case errCh <- err:
			default:
			}
		})
		return resultMsg{action: "connect", err: err}
	}
}

func startCmd(ctx context.Context, c *client.Client, argument string) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{action: "start", err: c.SendStartCommand(ctx, argument)}
	}
}

func interruptCmd(ctx context.Context, c *client.Client) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{action: "interrupt", err: c.SendInterruptCommand(ctx)}
	}
}
