package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// TestHealthHandler tests the liveness handler in isolation.
func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, HealthMessage, rr.Body.String())
}

// TestSetupRoutes tests the mux returned by SetupRoutes. It verifies the
// liveness, WebSocket and metrics routes and that unknown paths are 404.
func TestSetupRoutes(t *testing.T) {
	cfg := NewConfig()
	reg := prometheus.NewRegistry()
	relay.NewMetrics(MetricsNamespace, reg)

	ws := NewWSListener("test", cfg)
	defer ws.Close()

	ts := httptest.NewServer(SetupRoutes(cfg, ws, reg))
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp := makeRequest(t, http.MethodGet, ts.URL+"/", nil)
		assertStatusCode(t, resp, http.StatusOK)
		assertContentType(t, resp, "text/plain")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, HealthMessage, string(body))
	})

	t.Run("unknown path", func(t *testing.T) {
		resp := makeRequest(t, http.MethodGet, ts.URL+"/nope", nil)
		assertStatusCode(t, resp, http.StatusNotFound)
	})

	t.Run("websocket without upgrade", func(t *testing.T) {
		resp := makeRequest(t, http.MethodGet, ts.URL+cfg.WSPath, nil)
		assertStatusCode(t, resp, http.StatusBadRequest)
	})

	t.Run("metrics", func(t *testing.T) {
		resp := makeRequest(t, http.MethodGet, ts.URL+cfg.MetricsPath, nil)
		assertStatusCode(t, resp, http.StatusOK)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "relay_connections_total"))
	})
}
