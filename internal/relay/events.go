package relay

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventKind classifies a notification emitted by the engine.
type EventKind int

const (
	EventListening EventKind = iota
	EventConnect
	EventDisconnect
	EventMessage
	EventPrune
	EventError
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventListening:
		return "listening"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "message"
	case EventPrune:
		return "prune"
	case EventError:
		return "error"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// TimeLayout is the timestamp format used in rendered event lines.
const TimeLayout = "2006-01-02 15:04:05"

// Event is one discrete notification from the engine to whoever displays or
// records activity. Payload carries the message text for EventMessage and
// the listener address for EventListening.
type Event struct {
	Time    time.Time
	Kind    EventKind
	PeerID  string
	Session string
	Payload string
	Err     error
}

// Text returns the human readable body of the event without the timestamp.
func (e Event) Text() string {
	switch e.Kind {
	case EventListening:
		return fmt.Sprintf("Listening on %s, waiting for connections", e.Payload)
	case EventConnect:
		return fmt.Sprintf("Client connected: %s", e.PeerID)
	case EventDisconnect:
		if e.Err != nil {
			return fmt.Sprintf("Client disconnected: %s (%v)", e.PeerID, e.Err)
		}
		return fmt.Sprintf("Client disconnected: %s", e.PeerID)
	case EventMessage:
		return fmt.Sprintf("[%s] %s", e.PeerID, e.Payload)
	case EventPrune:
		return fmt.Sprintf("Dropped client %s: %v", e.PeerID, e.Err)
	case EventError:
		if e.PeerID != "" {
			return fmt.Sprintf("Client error %s: %v", e.PeerID, e.Err)
		}
		return fmt.Sprintf("Server error: %v", e.Err)
	case EventShutdown:
		return "Server stopped"
	default:
		return e.Payload
	}
}

// String renders the event as a timestamped display line.
func (e Event) String() string {
	return fmt.Sprintf("[%s] - %s", e.Time.Format(TimeLayout), e.Text())
}

// Sink receives engine notifications. Notify is called from the accept,
// receive and writer goroutines concurrently and must not block for long.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

// Notify calls f(ev).
func (f SinkFunc) Notify(ev Event) { f(ev) }

type discardSink struct{}

func (discardSink) Notify(Event) {}

// ChannelSink forwards events to a buffered channel, dropping them when the
// consumer falls behind.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewChannelSink returns a ChannelSink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 1
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

// Notify implements Sink.
func (s *ChannelSink) Notify(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the channel events are delivered on.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Dropped reports how many events were discarded because the buffer was full.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }
