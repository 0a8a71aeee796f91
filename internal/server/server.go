// Package server runs every enabled transport against one relay engine and
// coordinates their startup and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// MetricsNamespace prefixes every relay metric.
const MetricsNamespace = "relay"

// Server owns the relay engine, its listeners and the HTTP service that
// carries the WebSocket transport.
type Server struct {
	cfg     *Config
	engine  *relay.Engine
	metrics *prometheus.Registry

	ready   chan struct{}
	mu      sync.Mutex
	tcpAddr string
	wsAddr  string
}

// New creates a Server from cfg. Events from the engine go to sink, which
// may be nil.
func New(cfg *Config, sink relay.Sink) *Server {
	c := *cfg
	c.Sanitize()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := relay.New(
		relay.WithSink(sink),
		relay.WithMetrics(relay.NewMetrics(MetricsNamespace, reg)),
		relay.WithQueueSize(c.SendQueueSize),
		relay.WithWriteTimeout(c.WriteTimeout),
	)

	return &Server{
		cfg:     &c,
		engine:  engine,
		metrics: reg,
		ready:   make(chan struct{}),
	}
}

// Engine returns the relay engine driven by the server.
func (s *Server) Engine() *relay.Engine {
	return s.engine
}

// Gatherer returns the registry served on the metrics endpoint.
func (s *Server) Gatherer() prometheus.Gatherer {
	return s.metrics
}

// Ready is closed once every enabled listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// TCPAddr returns the bound TCP address, or "" if TCP is disabled or not yet
// bound.
func (s *Server) TCPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpAddr
}

// WSAddr returns the bound HTTP address carrying the WebSocket endpoint.
func (s *Server) WSAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wsAddr
}

// Run binds the enabled transports and relays until ctx is cancelled or a
// listener fails. It then shuts everything down within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	var (
		tcpListener *TCPListener
		wsListener  *WSListener
		httpServer  *http.Server
		httpLn      net.Listener
	)

	if s.cfg.Enabled(TransportTCP) {
		l, err := ListenTCP(s.cfg.TCPAddr, s.cfg.ReadBufferSize)
		if err != nil {
			return err
		}
		tcpListener = l
	}

	if s.cfg.Enabled(TransportWebSocket) {
		ln, err := net.Listen("tcp", s.cfg.WSAddr)
		if err != nil {
			if tcpListener != nil {
				_ = tcpListener.Close()
			}
			return fmt.Errorf("listen http %s: %w", s.cfg.WSAddr, err)
		}
		httpLn = ln
		wsListener = NewWSListener(ln.Addr().String()+s.cfg.WSPath, s.cfg)
		httpServer = CreateServer(ln.Addr().String(), SetupRoutes(s.cfg, wsListener, s.metrics))
	}

	s.mu.Lock()
	if tcpListener != nil {
		s.tcpAddr = tcpListener.Addr()
	}
	if httpLn != nil {
		s.wsAddr = httpLn.Addr().String()
	}
	s.mu.Unlock()
	close(s.ready)

	g, gctx := errgroup.WithContext(ctx)

	if tcpListener != nil {
		g.Go(func() error {
			return s.serve(tcpListener)
		})
	}

	if wsListener != nil {
		g.Go(func() error {
			return s.serve(wsListener)
		})
		g.Go(func() error {
			slog.Info("HTTP server listening", "addr", httpLn.Addr().String(), "path", s.cfg.WSPath)
			if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpServer)
	})

	return g.Wait()
}

// serve runs the accept loop for l. Losing the race with shutdown is not an
// error.
func (s *Server) serve(l relay.Listener) error {
	if err := s.engine.Serve(l); err != nil && !errors.Is(err, relay.ErrEngineClosed) {
		return err
	}
	return nil
}

// shutdown stops the HTTP service first so no new upgrades arrive, then
// closes every listener and peer.
func (s *Server) shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if httpServer != nil {
		if err := ShutdownServer(ctx, httpServer); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("relay shutdown: %w", err))
	}
	return errors.Join(errs...)
}
