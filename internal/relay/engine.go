package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Engine relays every message received from one peer to all other peers.
// It runs one accept loop per Listener passed to Serve, and a receive loop
// plus a writer per registered peer.
type Engine struct {
	opts     options
	registry *Registry

	mu        sync.Mutex
	closed    bool
	listeners map[Listener]struct{}
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Delivery summarizes one broadcast pass.
type Delivery struct {
	// Targets is the number of peers in the snapshot.
	Targets int
	// Queued is the number of peers the message was handed to.
	Queued int
	// Pruned lists the ids removed because the hand-off failed.
	Pruned []string
}

// New creates an Engine ready to Serve.
func New(opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:      newOptions(opts...),
		registry:  NewRegistry(),
		listeners: make(map[Listener]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Registry exposes the engine's peer registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Running reports whether Shutdown has not been called yet.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

func (e *Engine) notify(kind EventKind, p *Peer, payload string, err error) {
	ev := Event{
		Time:    time.Now(),
		Kind:    kind,
		Payload: payload,
		Err:     err,
	}
	if p != nil {
		ev.PeerID = p.ID()
		ev.Session = p.Session()
	}
	e.opts.sink.Notify(ev)
}

// Serve runs the accept loop for l until l is closed or the engine shuts
// down, and returns nil in both cases. Non-fatal accept errors are reported
// and retried with a growing delay; rejected clients are only reported.
// Serve returns ErrEngineClosed if the engine was already shut down.
func (e *Engine) Serve(l Listener) error {
	if !e.trackListener(l) {
		_ = l.Close()
		return ErrEngineClosed
	}
	defer e.untrackListener(l)

	e.notify(EventListening, nil, l.Addr(), nil)

	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, ErrListenerClosed) || !e.Running() {
				return nil
			}
			e.opts.metrics.acceptError()
			e.notify(EventError, nil, "", fmt.Errorf("accept: %w", err))
			if errors.Is(err, ErrRejected) {
				continue
			}

			delay = nextBackoff(delay)
			if !e.sleep(delay) {
				return nil
			}
			continue
		}
		delay = 0

		// Attach reports its own failures.
		_, _ = e.Attach(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

func (e *Engine) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Engine) trackListener(l Listener) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.listeners[l] = struct{}{}
	e.wg.Add(1)
	return true
}

func (e *Engine) untrackListener(l Listener) {
	e.mu.Lock()
	delete(e.listeners, l)
	e.mu.Unlock()
	e.wg.Done()
}

// Attach registers conn as a new peer and starts its receive loop and
// writer. The connection is closed if it cannot be registered.
func (e *Engine) Attach(conn Conn) (*Peer, error) {
	p := newPeer(conn, e.opts.queueSize)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = p.Close()
		return nil, ErrEngineClosed
	}
	if err := e.registry.Add(p); err != nil {
		e.mu.Unlock()
		_ = p.Close()
		e.notify(EventError, p, "", err)
		return nil, err
	}
	e.wg.Add(2)
	e.mu.Unlock()

	e.opts.metrics.connected()
	e.notify(EventConnect, p, "", nil)

	go e.writeLoop(p)
	go e.receiveLoop(p)
	return p, nil
}

// receiveLoop reads messages from p until the transport fails, handing each
// one to Broadcast. It is the only goroutine that reads from p.
func (e *Engine) receiveLoop(p *Peer) {
	defer e.wg.Done()

	var cause error
	defer func() {
		e.release(p, cause)
	}()

	for {
		msg, err := p.conn.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && p.State() == StateOpen {
				cause = err
			}
			return
		}

		e.opts.metrics.received()
		e.notify(EventMessage, p, strings.ToValidUTF8(string(msg), "\uFFFD"), nil)
		e.Broadcast(p, msg)
	}
}

// release is the receive side cleanup. It runs exactly once per peer.
func (e *Engine) release(p *Peer, cause error) {
	if e.registry.discard(p) {
		e.opts.metrics.removed(1)
	}
	_ = p.Close()
	e.opts.metrics.disconnected()
	e.notify(EventDisconnect, p, "", cause)
}

func (e *Engine) writeLoop(p *Peer) {
	defer e.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			select {
			case <-p.done:
				return
			default:
			}
			if err := e.write(p, msg); err != nil {
				e.opts.metrics.writeFailed()
				e.prune(p, err)
				return
			}
		}
	}
}

func (e *Engine) write(p *Peer, msg []byte) error {
	ctx, cancel := context.WithTimeout(e.ctx, e.opts.writeTimeout)
	defer cancel()
	return p.conn.Write(ctx, msg)
}

// prune removes p after a failed send and closes it, which in turn ends its
// receive loop. It reports whether this call removed p from the registry.
func (e *Engine) prune(p *Peer, cause error) bool {
	removed := e.registry.discard(p)
	if removed {
		e.opts.metrics.removed(1)
		e.opts.metrics.pruned()
		e.notify(EventPrune, p, "", cause)
	}
	_ = p.Close()
	return removed
}

// Broadcast offers msg to every registered peer except sender and prunes
// the peers that cannot take it. Failures never reach the caller; they are
// reported through the sink and the returned Delivery. A nil sender
// broadcasts to everyone.
func (e *Engine) Broadcast(sender *Peer, msg []byte) Delivery {
	var exclude string
	if sender != nil {
		exclude = sender.ID()
	}
	targets := e.registry.Snapshot(exclude)

	d := Delivery{Targets: len(targets)}
	type failure struct {
		peer *Peer
		err  error
	}
	var failed []failure

	for _, p := range targets {
		if err := p.Offer(msg); err != nil {
			failed = append(failed, failure{peer: p, err: err})
			continue
		}
		d.Queued++
	}

	// Peers already removed by their receive loop or Shutdown are not ours
	// to report.
	for _, f := range failed {
		if e.prune(f.peer, f.err) {
			d.Pruned = append(d.Pruned, f.peer.ID())
		}
	}

	e.opts.metrics.broadcast(d.Targets, d.Queued, len(d.Pruned))
	return d
}

// Shutdown stops every accept loop, closes all listeners, force-closes every
// peer and waits for the engine's goroutines to finish or ctx to expire.
// It is safe to call concurrently with broadcasts and more than once.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return e.wait(ctx)
	}
	e.closed = true
	listeners := make([]Listener, 0, len(e.listeners))
	for l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	e.cancel()
	for _, l := range listeners {
		_ = l.Close()
	}

	peers := e.registry.drain()
	e.opts.metrics.removed(len(peers))
	for _, p := range peers {
		_ = p.Close()
	}

	err := e.wait(ctx)
	e.notify(EventShutdown, nil, "", err)
	return err
}

func (e *Engine) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
