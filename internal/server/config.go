// Package server provides configuration helpers that define runtime defaults
// and environment overrides for the relay service.
package server

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport names accepted in Config.Transports.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Config holds the server configuration for both transports.
type Config struct {
	// Transports lists the enabled transports, TransportTCP and/or
	// TransportWebSocket.
	Transports []string

	TCPAddr        string
	ReadBufferSize int

	WSAddr         string
	WSPath         string
	MetricsPath    string
	AllowedOrigins []string
	MaxMessageSize int64
	PingInterval   time.Duration

	SendQueueSize   int
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Transports:      []string{TransportTCP, TransportWebSocket},
		TCPAddr:         ":9000",
		ReadBufferSize:  1024,
		WSAddr:          ":8080",
		WSPath:          "/ws",
		MetricsPath:     "/metrics",
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  64 * 1024,
		PingInterval:    30 * time.Second,
		SendQueueSize:   256,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset or unparsable variables fall back to the defaults.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	// PORT selects the WebSocket port
	if port := os.Getenv("PORT"); port != "" {
		cfg.WSAddr = parsePort(port, cfg.WSAddr)
	}

	if port := os.Getenv("TCP_PORT"); port != "" {
		cfg.TCPAddr = parsePort(port, cfg.TCPAddr)
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	if transports := os.Getenv("TRANSPORTS"); transports != "" {
		cfg.Transports = parseList(transports)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if queue := os.Getenv("SEND_QUEUE_SIZE"); queue != "" {
		cfg.SendQueueSize = parseIntValue(queue, cfg.SendQueueSize)
	}

	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		cfg.WriteTimeout = parseSeconds(timeout, cfg.WriteTimeout)
	}

	return &cfg
}

// Sanitize replaces zero or invalid values with defaults and normalizes the
// transport list.
func (c *Config) Sanitize() {
	def := defaultConfig()

	c.Transports = normalizeTransports(c.Transports)
	if len(c.Transports) == 0 {
		c.Transports = def.Transports
	}
	if c.TCPAddr == "" {
		c.TCPAddr = def.TCPAddr
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.WSAddr == "" {
		c.WSAddr = def.WSAddr
	}
	if c.WSPath == "" || !strings.HasPrefix(c.WSPath, "/") {
		c.WSPath = def.WSPath
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		c.MetricsPath = "/" + c.MetricsPath
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
}

// Enabled reports whether transport is listed in c.Transports.
func (c *Config) Enabled(transport string) bool {
	for _, t := range c.Transports {
		if t == transport {
			return true
		}
	}
	return false
}

func normalizeTransports(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		switch t {
		case "websocket":
			t = TransportWebSocket
		case "both", "all":
			for _, name := range []string{TransportTCP, TransportWebSocket} {
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
			continue
		}
		if (t == TransportTCP || t == TransportWebSocket) && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// parsePort accepts "8080" or ":8080" and returns a listen address.
func parsePort(value, defaultValue string) string {
	value = strings.TrimPrefix(strings.TrimSpace(value), ":")
	if port, err := strconv.Atoi(value); err == nil && port > 0 && port < 65536 {
		return net.JoinHostPort("", strconv.Itoa(port))
	}
	return defaultValue
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
