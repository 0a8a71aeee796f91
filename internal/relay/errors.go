package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrPeerClosed is returned when a message is offered to a peer that is
	// no longer open.
	ErrPeerClosed = errors.New("relay: peer closed")

	// ErrQueueFull is returned when a peer's outbound queue cannot take
	// another message.
	ErrQueueFull = errors.New("relay: send queue full")

	// ErrEngineClosed is returned by Serve and Attach once Shutdown started.
	ErrEngineClosed = errors.New("relay: engine closed")

	// ErrListenerClosed is wrapped by Listener implementations when Accept
	// fails because the listener itself is gone. The accept loop treats it
	// as fatal and exits silently.
	ErrListenerClosed = errors.New("relay: listener closed")

	// ErrRejected is wrapped by Listener implementations when Accept fails
	// because of one client, such as a refused handshake. The accept loop
	// reports it and keeps accepting without delay.
	ErrRejected = errors.New("relay: connection rejected")
)

// DuplicateIDError reports an attempt to register a peer whose id is
// already present in the registry.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("relay: peer %q already registered", e.ID)
}
