package relay

import "time"

const (
	// DefaultQueueSize is the number of outbound messages a peer may have
	// pending before it is considered too slow and pruned.
	DefaultQueueSize = 256

	// DefaultWriteTimeout bounds a single write to one peer.
	DefaultWriteTimeout = 10 * time.Second
)

type options struct {
	sink         Sink
	metrics      *Metrics
	queueSize    int
	writeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*options)

// WithSink sets the receiver of engine notifications.
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithMetrics makes the engine record into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithQueueSize sets the per-peer outbound queue length.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithWriteTimeout bounds each write to a peer.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

func newOptions(opts ...Option) options {
	o := options{
		sink:         discardSink{},
		queueSize:    DefaultQueueSize,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = discardSink{}
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = DefaultWriteTimeout
	}
	return o
}
