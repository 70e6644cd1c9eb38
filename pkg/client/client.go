// Package client is the device-facing facade: it owns the command channel,
// the console stream supervisor and the log views, and serializes every
// view mutation through one dispatcher goroutine.
package client

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/m8test/m8link/pkg/command"
	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/config"
	"github.com/m8test/m8link/pkg/errors"
	"github.com/m8test/m8link/pkg/logview"
	"github.com/m8test/m8link/pkg/stream"
)

// PluginTag tags records produced by the client itself.
const PluginTag = "m8link"

const (
	opQueueSize     = 256
	pluginQueueSize = 1024
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.NewClientError(errors.ErrorTypeUnknown, "client closed", nil)

// Options configures a Client
type Options struct {
	// Renderers receive the rendered output of each view. Missing
	// destinations render into an in-memory buffer.
	Renderers map[logview.Destination]logview.Renderer

	// BaseHandler receives every diagnostic the client logs. Defaults to
	// a text handler on stderr at the configured level.
	BaseHandler slog.Handler

	// OnState is invoked from the dispatcher on connection state changes.
	OnState func(stream.State)

	// SupervisorOptions are passed to the stream supervisor.
	SupervisorOptions []stream.Option
}

// Client talks to one device. Build one per device; clients share nothing.
type Client struct {
	ID string

	cfg        *config.Config
	logger     *slog.Logger
	handler    *PluginLogHandler
	channel    *command.Channel
	supervisor *stream.Supervisor
	router     *logview.Router
	onState    func(stream.State)

	opCh     chan op
	pluginCh chan common.LogRecord
	updates  chan struct{}

	nextPluginID atomic.Int64
	pluginDrops  atomic.Uint64

	// owned by the dispatcher
	state        stream.State
	streamErrors uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a client for the device described by cfg and starts its
// dispatcher. Call Close to release it.
func New(cfg *config.Config, opts Options) *Client {
	base := opts.BaseHandler
	if base == nil {
		base = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	handler := NewPluginLogHandler(cfg.LogLevel, base)

	id := uuid.NewString()
	logger := slog.New(handler).With(slog.String("client", id[:8]))

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ID:       id,
		cfg:      cfg,
		logger:   logger,
		handler:  handler,
		router:   logview.NewRouter(opts.Renderers),
		onState:  opts.OnState,
		opCh:     make(chan op, opQueueSize),
		pluginCh: make(chan common.LogRecord, pluginQueueSize),
		updates:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	c.channel = command.NewChannel(cfg, logger)

	supOpts := append([]stream.Option{stream.WithStateHandler(c.postState)}, opts.SupervisorOptions...)
	c.supervisor = stream.NewSupervisor(cfg, logger, supOpts...)

	handler.attach(c)
	go c.run()

	logger.Info("Client created",
		slog.String("device", cfg.HTTPURL("")),
		slog.Bool("adb_forwarding", cfg.EnableAdbForwarding))
	return c
}

// Logger returns the client's logger; its records also reach the plugin view.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// SendStartCommand starts the remote script. A blank argument is omitted.
func (c *Client) SendStartCommand(ctx context.Context, argument string) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.channel.Start(ctx, argument)
}

// SendInterruptCommand interrupts the running remote script.
func (c *Client) SendInterruptCommand(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.channel.Interrupt(ctx)
}

// ProjectRoot returns the device's project root path.
func (c *Client) ProjectRoot(ctx context.Context) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	return c.channel.ProjectRoot(ctx)
}

// ConnectStream opens the console stream. Records are stored in the script
// view and then passed to onRecord; stream errors go to onError. Both
// callbacks run on the dispatcher goroutine, in receipt order, and must
// not call Snapshot. Connecting while connected is a no-op.
func (c *Client) ConnectStream(ctx context.Context, onRecord func(common.LogRecord), onError func(error)) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.supervisor.Connect(ctx,
		func(r common.LogRecord) {
			c.post(op{Type: opIngest, Dest: logview.DestScript, Record: r, OnRecord: onRecord})
		},
		func(err error) {
			c.post(op{Type: opStreamError, Err: err, OnError: onError})
		})
}

// DisconnectStream closes the console stream without reconnecting.
func (c *Client) DisconnectStream() {
	c.supervisor.Disconnect()
}

func (c *Client) IsConnected() bool {
	return c.supervisor.IsConnected()
}

func (c *Client) State() stream.State {
	return c.supervisor.State()
}

// IngestPluginLog appends a locally produced record to the plugin view.
// Records get increasing ids starting at 1. It never blocks; when the
// dispatcher is saturated the record is dropped and counted.
func (c *Client) IngestPluginLog(level common.Level, message string) {
	c.ingestPlugin(level, message)
}

func (c *Client) ingestPlugin(level common.Level, message string) {
	if c.isClosed() {
		return
	}
	record := common.LogRecord{
		ID:      c.nextPluginID.Add(1),
		Level:   level,
		Tag:     PluginTag,
		Message: message,
		Time:    time.Now().Format(common.TimeLayout),
	}
	select {
	case c.pluginCh <- record:
	default:
		c.pluginDrops.Add(1)
	}
}

// SetFilter sets the level filter of every view; logview.LevelAll shows all.
func (c *Client) SetFilter(level common.Level) {
	c.post(op{Type: opSetLevel, Level: level})
}

// SetSearch sets the search query of every view; empty matches all.
func (c *Client) SetSearch(text string) {
	c.post(op{Type: opSetSearch, Text: text})
}

// Clear empties one view's history and output.
func (c *Client) Clear(dest logview.Destination) {
	c.post(op{Type: opClear, Dest: dest})
}

// ClearAll empties every view.
func (c *Client) ClearAll() {
	c.post(op{Type: opClearAll})
}

// Snapshot returns the view state after every previously posted operation
// has been applied.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	resp := make(chan Snapshot, 1)
	if !c.post(op{Type: opSnapshot, RespCh: resp}) {
		return Snapshot{}, ErrClosed
	}
	select {
	case snap := <-resp:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		return Snapshot{}, ErrClosed
	}
}

// Updates delivers a coalesced signal after view state changes.
func (c *Client) Updates() <-chan struct{} {
	return c.updates
}

// Close disconnects the stream, stops the dispatcher and releases idle
// HTTP connections. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Info("Closing client")
		c.handler.attach(nil)
		c.supervisor.Disconnect()
		c.cancel()
		<-c.done
		c.supervisor.Wait()
		c.channel.Close()
	})
	return nil
}

func (c *Client) isClosed() bool {
	return c.ctx.Err() != nil
}

func (c *Client) postState(s stream.State) {
	c.post(op{Type: opState, State: s})
}

// post hands an op to the dispatcher. It reports false once closed.
func (c *Client) post(o op) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.opCh <- o:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// run is the dispatcher: the only goroutine touching the router.
func (c *Client) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case rec := <-c.pluginCh:
			c.router.Ingest(logview.DestPlugin, rec)
			c.drainPlugin()
			c.notify()
		case o := <-c.opCh:
			// plugin records posted before o are applied first
			c.drainPlugin()
			c.handle(o)
			c.notify()
		}
	}
}

func (c *Client) drainPlugin() {
	for {
		select {
		case rec := <-c.pluginCh:
			c.router.Ingest(logview.DestPlugin, rec)
		default:
			return
		}
	}
}

func (c *Client) handle(o op) {
	switch o.Type {
	case opIngest:
		c.router.Ingest(o.Dest, o.Record)
		if o.OnRecord != nil {
			o.OnRecord(o.Record)
		}
	case opStreamError:
		c.streamErrors++
		if o.OnError != nil {
			o.OnError(o.Err)
		}
	case opState:
		c.state = o.State
		if c.onState != nil {
			c.onState(o.State)
		}
	case opSetLevel:
		c.router.SetLevelFilter(o.Level)
	case opSetSearch:
		c.router.SetSearchQuery(o.Text)
	case opClear:
		if !c.router.Clear(o.Dest) {
			c.logger.Warn("Unknown log destination", slog.String("destination", string(o.Dest)))
		}
	case opClearAll:
		c.router.ClearAll()
	case opSnapshot:
		o.RespCh <- c.buildSnapshot()
	}
}

func (c *Client) buildSnapshot() Snapshot {
	return Snapshot{
		Filter:       c.router.Filter(),
		State:        c.state,
		Script:       c.router.Rendered(logview.DestScript),
		Plugin:       c.router.Rendered(logview.DestPlugin),
		ScriptTotal:  len(c.router.History(logview.DestScript)),
		PluginTotal:  len(c.router.History(logview.DestPlugin)),
		PluginDrops:  c.pluginDrops.Load(),
		StreamErrors: c.streamErrors,
	}
}

func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
