package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/config"
	"github.com/m8test/m8link/pkg/errors"
	"github.com/m8test/m8link/pkg/utils"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1 << 20
)

// Session is one live connection to the device console
type Session struct {
	ID string

	conn       *websocket.Conn
	url        string
	idle       time.Duration
	logger     *slog.Logger
	userClosed atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
}

// Dial opens a console session. A dial that outlives the connect timeout
// is a timeout error; any other failure is a transport error.
func Dial(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	url := cfg.WebSocketURL(common.PathConsole)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.ConnectTimeout,
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dctx, url, nil)
	if err != nil {
		if dctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, errors.NewTimeoutError("dial timed out", err, url)
		}
		if resp != nil {
			return nil, errors.NewTransportError(
				fmt.Sprintf("handshake rejected with status %d", resp.StatusCode), err, url)
		}
		return nil, errors.NewNetworkError("dial failed", err, url)
	}

	s := &Session{
		ID:     utils.NewNanoID(),
		conn:   conn,
		url:    url,
		idle:   cfg.SocketTimeout,
		logger: logger,
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)

	logger.Info("Stream session opened", slog.String("session", s.ID), slog.String("url", url))
	return s, nil
}

// Serve reads frames until the connection ends. Records are delivered to
// onRecord in receipt order; undecodable frames go to onError and the
// session keeps reading. It returns nil after Close, otherwise the error
// that ended the session.
func (s *Session) Serve(onRecord func(common.LogRecord), onError func(error)) error {
	defer func() {
		close(s.done)
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(s.idle))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.idle))
		return nil
	})

	go s.startPingLoop()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.userClosed.Load() {
				return nil
			}
			err = s.classify(err)
			s.logger.Warn("Stream session ended", slog.String("session", s.ID), slog.String("error", err.Error()))
			return err
		}
		s.conn.SetReadDeadline(time.Now().Add(s.idle))

		if mt != websocket.TextMessage {
			continue
		}

		record, err := DecodeRecord(data)
		if err != nil {
			s.logger.Warn("Dropped console frame", slog.String("session", s.ID), slog.String("error", err.Error()))
			if onError != nil {
				onError(err)
			}
			continue
		}
		if onRecord != nil {
			onRecord(record)
		}
	}
}

func (s *Session) classify(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return errors.NewTransportError("closed by peer", err, s.url)
	}
	if errors.IsTimeoutCause(err) {
		return errors.NewTimeoutError("idle timeout", err, s.url)
	}
	return errors.NewTransportError("connection lost", err, s.url)
}

// startPingLoop keeps the idle deadline fed while the peer is quiet
func (s *Session) startPingLoop() {
	period := s.idle / 2
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close ends the session from this side. Serve then returns nil.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.userClosed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.conn.Close()
		s.logger.Info("Stream session closed", slog.String("session", s.ID))
	})
}

// UserClosed reports whether Close ended the session.
func (s *Session) UserClosed() bool {
	return s.userClosed.Load()
}

// Done is closed once Serve has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
