package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBrokenPipe = errors.New("write: broken pipe")

// fakeConn is an in-memory Conn. Tests push inbound messages with deliver
// and observe outbound ones on out.
type fakeConn struct {
	addr string
	in   chan []byte
	out  chan []byte

	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	failWrites  atomic.Bool
	blockWrites atomic.Bool
	writes      atomic.Int32
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:   addr,
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Write(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	if c.failWrites.Load() {
		return errBrokenPipe
	}
	if c.blockWrites.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return net.ErrClosed
		}
	}
	select {
	case c.out <- msg:
		c.writes.Add(1)
		return nil
	case <-c.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) deliver(t *testing.T, msg string) {
	t.Helper()
	select {
	case c.in <- []byte(msg):
	case <-time.After(time.Second):
		t.Fatalf("timed out delivering %q to %s", msg, c.addr)
	}
}

// expectMessage waits for one outbound message.
func (c *fakeConn) expectMessage(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-c.out:
		if string(got) != want {
			t.Fatalf("%s received %q, want %q", c.addr, got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not receive %q", c.addr, want)
	}
}

// expectNoMessage asserts nothing is written to c within d.
func (c *fakeConn) expectNoMessage(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got := <-c.out:
		t.Fatalf("%s unexpectedly received %q", c.addr, got)
	case <-time.After(d):
	}
}

// fakeListener hands out connections pushed by the test.
type fakeListener struct {
	conns     chan *fakeConn
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		conns: make(chan *fakeConn),
		errs:  make(chan error),
		done:  make(chan struct{}),
	}
}

func (l *fakeListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case err := <-l.errs:
		return nil, err
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *fakeListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *fakeListener) Addr() string { return "fake" }

func (l *fakeListener) dial(t *testing.T, addr string) *fakeConn {
	t.Helper()
	c := newFakeConn(addr)
	select {
	case l.conns <- c:
	case <-time.After(time.Second):
		t.Fatalf("accept loop did not take %s", addr)
	}
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
