package logview

import (
	"github.com/m8test/m8link/pkg/common"
)

// View is one destination's history and rendered output
type View struct {
	dest     Destination
	history  []common.LogRecord
	filter   Filter
	renderer Renderer
}

func newView(dest Destination, renderer Renderer) *View {
	if renderer == nil {
		renderer = NewBuffer()
	}
	return &View{
		dest:     dest,
		filter:   DefaultFilter(),
		renderer: renderer,
	}
}

// Ingest appends r to history and renders it if it passes the filter.
func (v *View) Ingest(r common.LogRecord) {
	v.history = append(v.history, r)
	if v.filter.Matches(r) {
		v.renderer.Append(r)
	}
}

// SetFilter replaces the filter and replays history.
func (v *View) SetFilter(f Filter) {
	v.filter = f
	v.Reload()
}

// Reload resets the renderer and replays history through the filter in order.
func (v *View) Reload() {
	v.renderer.Reset()
	for _, r := range v.history {
		if v.filter.Matches(r) {
			v.renderer.Append(r)
		}
	}
}

// Clear empties history and rendered output together.
func (v *View) Clear() {
	v.history = nil
	v.renderer.Reset()
}

func (v *View) History() []common.LogRecord {
	return append([]common.LogRecord(nil), v.history...)
}

func (v *View) Filter() Filter {
	return v.filter
}

func (v *View) Renderer() Renderer {
	return v.renderer
}

// Router owns the script and plugin views. The level filter and search
// query are shared by both views. A Router is not safe for concurrent
// use; the client drives it from a single goroutine.
type Router struct {
	views  map[Destination]*View
	filter Filter
}

// NewRouter creates a router. Destinations without a renderer get a Buffer.
func NewRouter(renderers map[Destination]Renderer) *Router {
	r := &Router{
		views:  make(map[Destination]*View, len(Destinations)),
		filter: DefaultFilter(),
	}
	for _, d := range Destinations {
		r.views[d] = newView(d, renderers[d])
	}
	return r
}

// View returns the view for dest, or nil for an unknown destination.
func (r *Router) View(dest Destination) *View {
	return r.views[dest]
}

// Ingest routes a record to dest. Unknown destinations are ignored and
// reported as false.
func (r *Router) Ingest(dest Destination, rec common.LogRecord) bool {
	v, ok := r.views[dest]
	if !ok {
		return false
	}
	v.Ingest(rec)
	return true
}

// SetLevelFilter changes the level filter and reloads every view.
func (r *Router) SetLevelFilter(level common.Level) {
	r.filter.Level = level
	r.apply()
}

// SetSearchQuery changes the search query and reloads every view.
func (r *Router) SetSearchQuery(query string) {
	r.filter.Query = query
	r.apply()
}

func (r *Router) Filter() Filter {
	return r.filter
}

func (r *Router) apply() {
	for _, d := range Destinations {
		r.views[d].SetFilter(r.filter)
	}
}

// Clear empties one destination. Other destinations are untouched.
func (r *Router) Clear(dest Destination) bool {
	v, ok := r.views[dest]
	if !ok {
		return false
	}
	v.Clear()
	return true
}

func (r *Router) ClearAll() {
	for _, d := range Destinations {
		r.views[d].Clear()
	}
}

// History returns a copy of dest's history.
func (r *Router) History(dest Destination) []common.LogRecord {
	v, ok := r.views[dest]
	if !ok {
		return nil
	}
	return v.History()
}

// Rendered returns the records currently shown for dest when its renderer
// is a Buffer, computing them from history otherwise.
func (r *Router) Rendered(dest Destination) []common.LogRecord {
	v, ok := r.views[dest]
	if !ok {
		return nil
	}
	if b, ok := v.renderer.(*Buffer); ok {
		return b.Records()
	}
	var out []common.LogRecord
	for _, rec := range v.history {
		if v.filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}
