// Package server adapts raw TCP sockets to the relay transport interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// TCPListener accepts raw stream connections. Message boundaries are
// whatever a single read returns; nothing is framed.
type TCPListener struct {
	ln             net.Listener
	readBufferSize int
}

// ListenTCP binds addr and returns a listener whose connections read at most
// readBufferSize bytes per message.
func ListenTCP(addr string, readBufferSize int) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return NewTCPListener(ln, readBufferSize), nil
}

// NewTCPListener wraps an already bound listener.
func NewTCPListener(ln net.Listener, readBufferSize int) *TCPListener {
	if readBufferSize <= 0 {
		readBufferSize = defaultConfig().ReadBufferSize
	}
	return &TCPListener{ln: ln, readBufferSize: readBufferSize}
}

// Accept implements relay.Listener.
func (l *TCPListener) Accept() (relay.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", relay.ErrListenerClosed, err)
		}
		return nil, err
	}
	return newTCPConn(conn, l.readBufferSize), nil
}

// Close stops accepting. Connections already accepted stay open.
func (l *TCPListener) Close() error {
	if err := l.ln.Close(); err != nil && !isExpectedCloseError(err) {
		return err
	}
	return nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

type tcpConn struct {
	conn net.Conn
	id   string
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

func newTCPConn(conn net.Conn, readBufferSize int) *tcpConn {
	return &tcpConn{
		conn: conn,
		id:   TransportTCP + "/" + conn.RemoteAddr().String(),
		buf:  make([]byte, readBufferSize),
	}
}

// Read returns a copy of whatever the next read call yields. A zero-byte
// read is a graceful disconnect.
func (c *tcpConn) Read() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		msg := make([]byte, n)
		copy(msg, c.buf[:n])
		return msg, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, err
}

func (c *tcpConn) Write(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.conn.Write(msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *tcpConn) RemoteAddr() string {
	return c.id
}
