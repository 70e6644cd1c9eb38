package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/config"
	"github.com/m8test/m8link/pkg/errors"
)

// ErrReconnectExhausted is reported once when every reconnect attempt failed.
var ErrReconnectExhausted = errors.NewTransportError("reconnect attempts exhausted", nil)

// State is the supervisor's connection state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DialFunc opens a session
type DialFunc func(ctx context.Context) (*Session, error)

// SleepFunc waits d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Supervisor
type Option func(*Supervisor)

// WithDialFunc replaces the console dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Supervisor) { s.dial = dial }
}

// WithSleepFunc replaces the inter-attempt sleep.
func WithSleepFunc(sleep SleepFunc) Option {
	return func(s *Supervisor) { s.sleep = sleep }
}

// WithStateHandler registers a callback for state transitions.
func WithStateHandler(fn func(State)) Option {
	return func(s *Supervisor) { s.onState = fn }
}

type handlers struct {
	onRecord func(common.LogRecord)
	onError  func(error)
}

// Supervisor owns at most one live session and restores it after
// unexpected loss, with a fixed retry budget and a fixed delay.
type Supervisor struct {
	cfg     *config.Config
	logger  *slog.Logger
	dial    DialFunc
	sleep   SleepFunc
	onState func(State)

	connectMu sync.Mutex

	mu        sync.Mutex
	session   *Session
	state     State
	handlers  handlers
	runCtx    context.Context
	runCancel context.CancelFunc

	reconnecting atomic.Bool
	wg           sync.WaitGroup
}

// NewSupervisor creates a supervisor for the device described by cfg
func NewSupervisor(cfg *config.Config, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
	s.dial = func(ctx context.Context) (*Session, error) {
		return Dial(ctx, cfg, logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the console session. It is a no-op while connected. A
// failed dial starts the reconnect sequence and is also returned.
func (s *Supervisor) Connect(ctx context.Context, onRecord func(common.LogRecord), onError func(error)) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.IsConnected() {
		s.logger.Debug("Stream already connected")
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		s.logger.Error("Invalid device configuration", slog.String("error", err.Error()))
		return err
	}

	s.mu.Lock()
	s.handlers = handlers{onRecord: onRecord, onError: onError}
	if s.runCtx == nil || s.runCtx.Err() != nil {
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
	}
	runCtx := s.runCtx
	s.mu.Unlock()

	s.setState(StateConnecting)

	dctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, cancel)
	sess, err := s.dial(dctx)
	stop()
	cancel()

	if err != nil {
		s.setState(StateDisconnected)
		s.logger.Error("Failed to connect stream", slog.String("error", err.Error()))
		if ctx.Err() == nil && runCtx.Err() == nil && errors.Retryable(err) {
			s.triggerReconnect(runCtx)
		}
		return err
	}

	if !s.install(runCtx, sess) {
		sess.Close()
		return nil
	}
	s.wg.Add(1)
	go s.serve(runCtx, sess)
	return nil
}

// Disconnect closes the session and cancels any reconnect sequence. No
// reconnect or terminal report follows.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	if s.runCancel != nil {
		s.runCancel()
	}
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	s.setState(StateDisconnected)
	s.logger.Info("Stream disconnected")
}

// IsConnected reports whether a session is live
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reconnecting reports whether a reconnect sequence is in progress.
func (s *Supervisor) Reconnecting() bool {
	return s.reconnecting.Load()
}

// Wait blocks until serve and reconnect goroutines have returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// install makes sess the live session unless runCtx was cancelled meanwhile.
func (s *Supervisor) install(runCtx context.Context, sess *Session) bool {
	s.mu.Lock()
	if runCtx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.session = sess
	s.mu.Unlock()

	s.setState(StateConnected)
	s.logger.Info("Stream connected", slog.String("session", sess.ID))
	return true
}

func (s *Supervisor) serve(runCtx context.Context, sess *Session) {
	defer s.wg.Done()

	s.mu.Lock()
	h := s.handlers
	s.mu.Unlock()

	err := sess.Serve(h.onRecord, h.onError)

	s.mu.Lock()
	current := s.session == sess
	if current {
		s.session = nil
	}
	s.mu.Unlock()

	if sess.UserClosed() || runCtx.Err() != nil {
		return
	}
	if current {
		s.setState(StateDisconnected)
	}

	if err != nil && h.onError != nil {
		h.onError(err)
	}
	s.triggerReconnect(runCtx)
}

// triggerReconnect starts the reconnect sequence unless one is running.
func (s *Supervisor) triggerReconnect(runCtx context.Context) {
	if !s.reconnecting.CompareAndSwap(false, true) {
		s.logger.Debug("Reconnect already in progress")
		return
	}
	s.wg.Add(1)
	go s.reconnectLoop(runCtx)
}

func (s *Supervisor) reconnectLoop(runCtx context.Context) {
	defer s.wg.Done()

	budget := s.cfg.MaxRetries
	for attempt := 1; attempt <= budget; attempt++ {
		if err := s.sleep(runCtx, s.cfg.ReconnectDelay); err != nil {
			s.reconnecting.Store(false)
			s.logger.Debug("Reconnect cancelled")
			return
		}

		s.logger.Info("Reconnecting stream",
			slog.Int("attempt", attempt),
			slog.Int("remaining", budget-attempt))

		sess, err := s.attempt(runCtx)
		if err == nil {
			s.reconnecting.Store(false)
			if sess != nil {
				s.wg.Add(1)
				go s.serve(runCtx, sess)
			}
			return
		}
		if runCtx.Err() != nil {
			s.reconnecting.Store(false)
			s.logger.Debug("Reconnect cancelled")
			return
		}
		s.logger.Warn("Reconnect attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}

	s.reconnecting.Store(false)
	if runCtx.Err() != nil {
		return
	}

	s.logger.Error("Reconnect attempts exhausted", slog.Int("attempts", budget))
	s.mu.Lock()
	onError := s.handlers.onError
	s.mu.Unlock()
	if onError != nil {
		onError(ErrReconnectExhausted)
	}
}

// attempt dials once. A nil session with a nil error means another caller
// connected in the meantime.
func (s *Supervisor) attempt(runCtx context.Context) (*Session, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.IsConnected() {
		return nil, nil
	}

	s.setState(StateConnecting)
	sess, err := s.dial(runCtx)
	if err != nil {
		s.setState(StateDisconnected)
		return nil, err
	}
	if !s.install(runCtx, sess) {
		sess.Close()
		return nil, runCtx.Err()
	}
	return sess, nil
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed && s.onState != nil {
		s.onState(state)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
