package relay

import "context"

// Conn abstracts one accepted stream, raw socket or WebSocket alike.
type Conn interface {
	// Read blocks until one discrete message arrives. It returns io.EOF
	// when the remote side closed gracefully.
	Read() ([]byte, error)

	// Write sends one message, giving up when ctx expires.
	Write(ctx context.Context, msg []byte) error

	// Close releases the transport. Calling it more than once is a no-op.
	Close() error

	// RemoteAddr identifies the remote endpoint and becomes the peer id, so
	// it must be unique among live connections of every transport.
	RemoteAddr() string
}

// Listener is a source of accepted connections.
type Listener interface {
	// Accept blocks until the next connection is ready. Errors wrapping
	// ErrListenerClosed end the accept loop; any other error is logged and
	// the loop keeps going.
	Accept() (Conn, error)

	Close() error

	Addr() string
}
