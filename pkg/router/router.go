package router

import (
	"net/http"
	"sort"
	"strings"
)

// Route is one method+path registration
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Router dispatches requests by exact path and method. A known path with
// an unregistered method answers 405 with an Allow header.
type Router struct {
	routes map[string]map[string]http.HandlerFunc
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]map[string]http.HandlerFunc),
	}
}

// Register registers a route with the router
func (r *Router) Register(method, path string, handler http.HandlerFunc) {
	methods, ok := r.routes[path]
	if !ok {
		methods = make(map[string]http.HandlerFunc)
		r.routes[path] = methods
	}
	methods[strings.ToUpper(method)] = handler
}

// Match finds the handler for method and path. The second result reports
// whether the path is known at all.
func (r *Router) Match(method, path string) (http.HandlerFunc, bool) {
	methods, ok := r.routes[path]
	if !ok {
		return nil, false
	}
	return methods[strings.ToUpper(method)], true
}

// Routes lists registrations sorted by path then method.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.routes))
	for path, methods := range r.routes {
		for method, handler := range methods {
			out = append(out, Route{Method: method, Path: path, Handler: handler})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler, known := r.Match(req.Method, req.URL.Path)
	if !known {
		http.NotFound(w, req)
		return
	}
	if handler == nil {
		w.Header().Set("Allow", r.allowed(req.URL.Path))
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, req)
}

func (r *Router) allowed(path string) string {
	methods := make([]string, 0, len(r.routes[path]))
	for m := range r.routes[path] {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
