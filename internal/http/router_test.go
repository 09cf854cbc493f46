package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dredge/internal/config"
	"dredge/internal/store"
)

func TestHealthzShallow(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", healthHandler(&store.Store{}, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	decodeBody(t, resp, &out)
	assert.Equal(t, "ok", out["status"])
}

// NewServer wires auth in front of /api but leaves health and metrics
// open. The store is never reached because the middleware rejects first.
func TestNewServerRouteProtection(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.APIKey = "secret"
	cfg.Server.ReadTimeoutMs = 5000

	srv := NewServer(cfg, &store.Store{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err = srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	resp, err = srv.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var out ErrorResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "UNAUTHENTICATED", out.Code)
}

func TestNewServerRequestIDHeader(t *testing.T) {
	cfg := &config.Config{}
	srv := NewServer(cfg, &store.Store{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err = srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-Id"))
}
