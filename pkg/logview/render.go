package logview

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/m8test/m8link/pkg/common"
	"github.com/muesli/termenv"
)

// Renderer is the display surface of one view. Reset empties it; Append
// shows one more record at the end.
type Renderer interface {
	Reset()
	Append(r common.LogRecord)
}

// Buffer is an in-memory renderer that keeps the shown records
type Buffer struct {
	records []common.LogRecord
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Reset() {
	b.records = b.records[:0]
}

func (b *Buffer) Append(r common.LogRecord) {
	b.records = append(b.records, r)
}

// Records returns a copy of the shown records.
func (b *Buffer) Records() []common.LogRecord {
	return append([]common.LogRecord(nil), b.records...)
}

func (b *Buffer) Len() int {
	return len(b.records)
}

// Styles maps levels to their display style
type Styles map[common.Level]lipgloss.Style

// NewStyles builds level styles on r. With noColor every level renders plain.
func NewStyles(r *lipgloss.Renderer, noColor bool) Styles {
	plain := r.NewStyle()
	if noColor {
		return Styles{}
	}
	return Styles{
		common.LevelDebug:   plain.Foreground(lipgloss.Color("#B0B0B0")),
		common.LevelVerbose: plain.Foreground(lipgloss.Color("#A9A9A9")),
		common.LevelInfo:    plain,
		common.LevelWarn:    plain.Foreground(lipgloss.Color("#FFA500")),
		common.LevelError:   plain.Foreground(lipgloss.Color("#FF0000")),
		common.LevelAssert:  plain.Foreground(lipgloss.Color("#1E90FF")),
		common.LevelUnknown: plain,
	}
}

// Render styles the display line of r.
func (s Styles) Render(r common.LogRecord) string {
	style, ok := s[r.Level]
	if !ok {
		return r.Line()
	}
	return style.Render(r.Line())
}

// WriterRenderer streams styled lines to a terminal or file. Reset
// clears the screen when the output is a terminal, otherwise it is a no-op.
type WriterRenderer struct {
	out    *termenv.Output
	styles Styles
	clear  bool
}

// NewWriterRenderer creates a renderer on w. Colors follow the terminal's
// detected profile unless noColor is set.
func NewWriterRenderer(w io.Writer, noColor bool) *WriterRenderer {
	opts := []termenv.OutputOption{}
	if noColor {
		opts = append(opts, termenv.WithProfile(termenv.Ascii))
	}
	out := termenv.NewOutput(w, opts...)

	lip := lipgloss.NewRenderer(w)
	lip.SetColorProfile(out.Profile)

	return &WriterRenderer{
		out:    out,
		styles: NewStyles(lip, noColor || out.Profile == termenv.Ascii),
		clear:  out.Profile != termenv.Ascii,
	}
}

func (w *WriterRenderer) Reset() {
	if w.clear {
		w.out.ClearScreen()
	}
}

func (w *WriterRenderer) Append(r common.LogRecord) {
	_, _ = io.WriteString(w.out, w.styles.Render(r)+"\n")
}
