package peer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/utils"
)

// ConsoleConfig holds the console hub's socket timings
type ConsoleConfig struct {
	PingPeriod     time.Duration
	WriteWait      time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// NewDefaultConsoleConfig returns timings matching the client's defaults.
func NewDefaultConsoleConfig() *ConsoleConfig {
	return &ConsoleConfig{
		PingPeriod:     15 * time.Second,
		WriteWait:      5 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 4096,
	}
}

// consoleClient is one attached log viewer
type consoleClient struct {
	ID        string
	Connected time.Time
	conn      *websocket.Conn
	writeMu   sync.Mutex
	cancel    context.CancelFunc
}

func (c *consoleClient) write(messageType int, data []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wait))
	return c.conn.WriteMessage(messageType, data)
}

// Console is the /console broadcast hub. Every published record is sent
// to every attached client as one JSON text frame.
type Console struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*consoleClient
	mutex    sync.RWMutex
	config   *ConsoleConfig
	logger   *slog.Logger
	nextID   atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewConsole creates a console hub
func NewConsole(config *ConsoleConfig, logger *slog.Logger) *Console {
	if config == nil {
		config = NewDefaultConsoleConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Console{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*consoleClient),
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// HandleWebSocket upgrades a /console request and attaches the client
func (h *Console) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	client := &consoleClient{
		ID:        utils.NewNanoID(),
		Connected: time.Now(),
		conn:      conn,
		cancel:    cancel,
	}

	h.mutex.Lock()
	h.clients[conn] = client
	h.mutex.Unlock()

	h.logger.Info("Console client attached", slog.String("client", client.ID), slog.String("remote", r.RemoteAddr))

	go h.handleClient(ctx, client)
}

// handleClient drains inbound frames so control frames are processed
func (h *Console) handleClient(ctx context.Context, client *consoleClient) {
	defer h.cleanupClient(client.conn)

	conn := client.conn
	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	go h.startPingLoop(ctx, client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Console client error", slog.String("client", client.ID), slog.String("error", err.Error()))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	}
}

// startPingLoop pings a client until it detaches or the hub closes
func (h *Console) startPingLoop(ctx context.Context, client *consoleClient) {
	ticker := time.NewTicker(h.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.config.WriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Console) cleanupClient(conn *websocket.Conn) {
	h.mutex.Lock()
	client, exists := h.clients[conn]
	delete(h.clients, conn)
	h.mutex.Unlock()

	if !exists {
		return
	}
	client.cancel()
	conn.Close()
	h.logger.Info("Console client detached", slog.String("client", client.ID))
}

// Publish assigns the next record id and broadcasts the record. It returns
// the record that was sent.
func (h *Console) Publish(level common.Level, tag, message string) common.LogRecord {
	record := common.LogRecord{
		ID:      h.nextID.Add(1),
		Level:   level,
		Tag:     tag,
		Message: message,
		Time:    time.Now().Format(common.TimeLayout),
	}

	data, err := json.Marshal(record)
	if err != nil {
		h.logger.Error("Failed to encode record", slog.String("error", err.Error()))
		return record
	}
	h.BroadcastRaw(data)
	return record
}

// BroadcastRaw sends data as a text frame to every client, verbatim.
func (h *Console) BroadcastRaw(data []byte) {
	h.mutex.RLock()
	clients := make([]*consoleClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, data, h.config.WriteWait); err != nil {
			h.logger.Warn("Failed to send console frame", slog.String("client", c.ID), slog.String("error", err.Error()))
		}
	}
}

// DropClients closes every attached connection without a close handshake,
// the way a device restart looks to the viewer.
func (h *Console) DropClients() {
	h.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mutex.RUnlock()

	for _, conn := range conns {
		conn.NetConn().Close()
	}
}

// ClientCount reports the number of attached clients.
func (h *Console) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close detaches all clients and stops background loops
func (h *Console) Close() {
	h.cancel()

	h.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mutex.RUnlock()

	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.config.WriteWait))
		conn.Close()
	}
}
