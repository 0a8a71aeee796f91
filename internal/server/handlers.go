// Package server exposes HTTP handlers for the liveness check.
package server

import (
	"fmt"
	"net/http"
)

// HealthMessage is the body returned by HealthHandler.
const HealthMessage = "Relay server is running."

// HealthHandler provides a simple liveness endpoint over plain HTTP.
// It responds with a static text message.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, HealthMessage)
}
