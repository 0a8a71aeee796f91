package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of a Peer. It only ever moves forward.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is one connected endpoint taking part in broadcast. It exclusively
// owns its Conn and a bounded queue of outbound messages.
type Peer struct {
	id          string
	session     string
	seq         uint64
	conn        Conn
	queue       chan []byte
	state       atomic.Int32
	done        chan struct{}
	closeOnce   sync.Once
	closeErr    error
	connectedAt time.Time
}

var peerSeq atomic.Uint64

func newPeer(conn Conn, queueSize int) *Peer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Peer{
		id:          conn.RemoteAddr(),
		session:     uuid.NewString(),
		seq:         peerSeq.Add(1),
		conn:        conn,
		queue:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// ID returns the remote address the peer is keyed by.
func (p *Peer) ID() string { return p.id }

// Session returns a random identifier unique to this connection, even if
// the remote address is later reused.
func (p *Peer) Session() string { return p.session }

// State reports the current lifecycle stage.
func (p *Peer) State() State { return State(p.state.Load()) }

// ConnectedAt is the time the connection was accepted.
func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

// Done is closed once the peer starts closing.
func (p *Peer) Done() <-chan struct{} { return p.done }

// advance moves the peer to state to, unless it is already there or beyond.
func (p *Peer) advance(to State) bool {
	for {
		cur := p.state.Load()
		if State(cur) >= to {
			return false
		}
		if p.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// Offer queues msg for delivery without blocking. It fails with
// ErrPeerClosed when the peer is not open and with ErrQueueFull when the
// peer has fallen too far behind.
func (p *Peer) Offer(msg []byte) error {
	if p.State() != StateOpen {
		return ErrPeerClosed
	}
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close releases the transport. Only the first call does any work; later
// calls return the first result.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.advance(StateClosing)
		close(p.done)
		p.closeErr = p.conn.Close()
		p.advance(StateClosed)
	})
	return p.closeErr
}
