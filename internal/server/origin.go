// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a WebSocket.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// newOriginPolicy builds a policy from configured origins. "*" allows every
// origin; entries that are not scheme://host are ignored with a warning.
func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, entry := range origins {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case entry == "*":
			p.allowAll = true
		default:
			key, ok := originKey(entry)
			if !ok {
				slog.Warn("Ignoring invalid origin in configuration", "origin", entry)
				continue
			}
			p.allowed[key] = struct{}{}
		}
	}
	return p
}

// originKey reduces an origin to its lower-cased scheme and host, the form
// browsers send and the policy compares.
func originKey(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// check is used as websocket.Upgrader.CheckOrigin. Requests without an
// Origin header come from non-browser clients and are always accepted.
func (p *originPolicy) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" || p.allowAll {
		return true
	}

	if key, ok := originKey(originHeader); ok {
		if _, exists := p.allowed[key]; exists {
			return true
		}
	}

	slog.Warn("Blocked WebSocket connection from disallowed origin", "origin", originHeader)
	return false
}
