// Package peer is an emulated M8Test device: it serves the project-root,
// command and console endpoints so the client can run without hardware.
package peer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/middleware"
	"github.com/m8test/m8link/pkg/router"
)

// DefaultRoot is the project root reported when none is configured.
const DefaultRoot = "/sdcard/m8test/project"

// Options configures an emulated device
type Options struct {
	Root    string
	Console *ConsoleConfig
	Logger  *slog.Logger
}

// Server represents the emulated device
type Server struct {
	router  *router.Router
	console *Console
	script  *ScriptRunner
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates a new emulated device
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}

	console := NewConsole(opts.Console, logger)
	srv := &Server{
		router:  router.NewRouter(),
		console: console,
		script:  NewScriptRunner(root, console, logger),
		logger:  logger,
	}
	srv.registerRoutes()
	return srv
}

// routeConfig defines route configuration
type routeConfig struct {
	Method   string
	Pattern  string
	Function http.HandlerFunc
}

func (s *Server) registerRoutes() {
	chain := middleware.Chain(
		middleware.Logger(s.logger),
		middleware.Recovery(s.logger),
	)

	routes := []routeConfig{
		{http.MethodPost, common.PathProjectRoot, s.script.HandleProjectRoot},
		{http.MethodPost, common.PathCommandExecute, s.script.HandleExecute},
		{http.MethodGet, common.PathConsole, s.console.HandleWebSocket},
	}

	for _, route := range routes {
		s.logger.Debug("Registering route",
			slog.String("method", route.Method),
			slog.String("pattern", route.Pattern),
		)
		s.router.Register(route.Method, route.Pattern, chain(route.Function).ServeHTTP)
	}
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Console() *Console {
	return s.console
}

func (s *Server) Script() *ScriptRunner {
	return s.script
}

// Serve accepts connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Emulated device listening", slog.String("addr", l.Addr().String()))
		errCh <- s.httpSrv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Close detaches console clients.
func (s *Server) Close() {
	s.logger.Info("Performing device cleanup...")
	s.console.Close()
}
