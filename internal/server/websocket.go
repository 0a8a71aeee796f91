// Package server adapts WebSocket upgrades to the relay transport interfaces.
// The HTTP server is the real accept loop; each successful upgrade is handed
// to the relay engine through WSListener.Accept.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/internal/relay"
)

const controlWriteWait = 10 * time.Second

type wsAccept struct {
	conn relay.Conn
	err  error
}

// WSListener is an http.Handler for the WebSocket path that doubles as a
// relay.Listener.
type WSListener struct {
	addr           string
	upgrader       websocket.Upgrader
	maxMessageSize int64
	pingInterval   time.Duration

	accepted  chan wsAccept
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSListener creates a listener for upgrades served at addr using the
// WebSocket settings of cfg.
func NewWSListener(addr string, cfg *Config) *WSListener {
	origins := newOriginPolicy(cfg.AllowedOrigins)
	return &WSListener{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		maxMessageSize: cfg.MaxMessageSize,
		pingInterval:   cfg.PingInterval,
		accepted:       make(chan wsAccept),
		done:           make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and queues the connection for Accept.
// Requests that are not upgrades get 400 and register nothing.
func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Bad Request. WebSocket endpoint requires a protocol upgrade.", http.StatusBadRequest)
		return
	}

	select {
	case <-l.done:
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request. The failure belongs to
		// this client alone, so the accept loop must not back off for it.
		l.push(wsAccept{err: fmt.Errorf("%w: websocket upgrade from %s: %w", relay.ErrRejected, r.RemoteAddr, err)})
		return
	}

	c := newWSConn(conn, TransportWebSocket+"/"+r.RemoteAddr, l.maxMessageSize, l.pingInterval)
	if !l.push(wsAccept{conn: c}) {
		_ = c.Close()
	}
}

func (l *WSListener) push(a wsAccept) bool {
	select {
	case l.accepted <- a:
		return true
	case <-l.done:
		return false
	}
}

// Accept implements relay.Listener.
func (l *WSListener) Accept() (relay.Conn, error) {
	select {
	case a := <-l.accepted:
		return a.conn, a.err
	case <-l.done:
		return nil, relay.ErrListenerClosed
	}
}

// Close stops handing out connections. Pending upgrades are closed.
func (l *WSListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Addr returns the address and path upgrades are served on.
func (l *WSListener) Addr() string {
	return l.addr
}

type wsConn struct {
	conn     *websocket.Conn
	id       string
	pongWait time.Duration

	writing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, id string, maxMessageSize int64, pingInterval time.Duration) *wsConn {
	c := &wsConn{
		conn:     conn,
		id:       id,
		pongWait: 2 * pingInterval,
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	go c.keepAlive(pingInterval)
	return c
}

func (c *wsConn) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		slog.Debug("Error setting read deadline", "peer", c.id, "error", err)
	}
}

// keepAlive pings the remote side until the connection closes. A missed pong
// surfaces as a read deadline error in Read.
func (c *wsConn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				if !isExpectedCloseError(err) {
					slog.Debug("Error writing ping", "peer", c.id, "error", err)
				}
				return
			}
		}
	}
}

// Read returns the payload of the next data frame. A close frame from the
// remote side is reported as io.EOF.
func (c *wsConn) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}
	c.extendReadDeadline()
	return data, nil
}

// Write sends msg as a single text frame. Cancelling ctx interrupts a write
// that is blocked on a peer which stopped reading.
func (c *wsConn) Write(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	// The frame writer resets the socket deadline for every frame, so only
	// closing the socket reliably unblocks it. A failed write is fatal to a
	// websocket.Conn anyway.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.NetConn().Close()
	})
	defer stop()

	c.writing.Store(true)
	defer c.writing.Store(false)
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close sends a normal closure frame and releases the socket. The frame is
// skipped when a data write is stuck, so closing a slow peer never waits on it.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if !c.writing.Load() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Closing")
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait)); err != nil && !isExpectedCloseError(err) {
				slog.Debug("Error writing close message", "peer", c.id, "error", err)
			}
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string {
	return c.id
}
