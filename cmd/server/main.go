package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/Tyrowin/gorelay/internal/relay"
	"github.com/Tyrowin/gorelay/internal/server"
)

var version = "latest"

func main() {
	slog.SetDefault(slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger)))

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gorelay"
	app.Usage = "Relay every message from one client to all other connected clients"
	app.Version = version
	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "transport",
			Usage: "Enabled transports: tcp, ws or both",
		},
		&cli.StringFlag{
			Name:  "tcp-addr",
			Usage: "Listen address for raw TCP clients",
		},
		&cli.StringFlag{
			Name:  "ws-addr",
			Usage: "Listen address for the HTTP server carrying WebSocket clients",
		},
		&cli.StringFlag{
			Name:  "ws-path",
			Usage: "Path of the WebSocket endpoint",
		},
		&cli.StringSliceFlag{
			Name:  "allowed-origin",
			Usage: "Browser origin allowed to open a WebSocket, or * for any",
		},
		&cli.IntFlag{
			Name:  "queue-size",
			Usage: "Pending outbound messages per client before it is dropped",
		},
		&cli.DurationFlag{
			Name:  "write-timeout",
			Usage: "Longest a single write to a client may take",
		},
		&cli.DurationFlag{
			Name:  "shutdown-timeout",
			Usage: "Grace period for closing clients on exit",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Do not print connection and message events",
		},
	}
	app.Action = run
	return app
}

// configFromContext starts from the environment and applies only the flags
// given on the command line.
func configFromContext(c *cli.Context) *server.Config {
	cfg := server.NewConfigFromEnv()

	if c.IsSet("transport") {
		cfg.Transports = c.StringSlice("transport")
	}
	if c.IsSet("tcp-addr") {
		cfg.TCPAddr = c.String("tcp-addr")
	}
	if c.IsSet("ws-addr") {
		cfg.WSAddr = c.String("ws-addr")
	}
	if c.IsSet("ws-path") {
		cfg.WSPath = c.String("ws-path")
	}
	if c.IsSet("allowed-origin") {
		cfg.AllowedOrigins = c.StringSlice("allowed-origin")
	}
	if c.IsSet("queue-size") {
		cfg.SendQueueSize = c.Int("queue-size")
	}
	if c.IsSet("write-timeout") {
		cfg.WriteTimeout = c.Duration("write-timeout")
	}
	if c.IsSet("shutdown-timeout") {
		cfg.ShutdownTimeout = c.Duration("shutdown-timeout")
	}

	cfg.Sanitize()
	return cfg
}

func run(c *cli.Context) error {
	cfg := configFromContext(c)

	var sink relay.Sink
	if !c.Bool("quiet") {
		sink = server.NewConsoleSink(os.Stdout)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting relay server",
		"transports", cfg.Transports,
		"tcp", cfg.TCPAddr,
		"ws", cfg.WSAddr+cfg.WSPath,
		"queue", cfg.SendQueueSize,
		"write_timeout", cfg.WriteTimeout.String(),
	)

	start := time.Now()
	if err := server.New(cfg, sink).Run(ctx); err != nil {
		// Failures after a signal only mean the grace period ran out.
		if ctx.Err() == nil {
			return err
		}
		slog.Error("Shutdown incomplete", "error", err)
	}

	slog.Info("Relay server stopped", "uptime", time.Since(start).Round(time.Second).String())
	return nil
}
