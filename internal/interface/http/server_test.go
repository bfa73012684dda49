package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal})
}

func newTestServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	return NewServer(config, deps)
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "kurslab-engagement", data["service"])
}

func TestUnknownPathIs404(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeBody(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestHealth(t *testing.T) {
	t.Run("all components up", func(t *testing.T) {
		s := newTestServer(DefaultConfig(), Dependencies{
			HealthChecks: map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
		})

		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		data := decodeBody(t, rec).Data.(map[string]interface{})
		assert.Equal(t, "healthy", data["status"])
	})

	t.Run("a failing component degrades health", func(t *testing.T) {
		s := newTestServer(DefaultConfig(), Dependencies{
			HealthChecks: map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
		})

		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		data := decodeBody(t, rec).Data.(map[string]interface{})
		assert.Equal(t, "degraded", data["status"])
	})
}

func TestReady_GatesOnlyOnReadinessChecks(t *testing.T) {
	// Redis is down but not in the readiness set; the service still serves
	s := newTestServer(DefaultConfig(), Dependencies{
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
		ReadinessChecks: []string{"postgres"},
	})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_FailsWhenGatedComponentIsDown(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return errors.New("no route to host") },
		},
		ReadinessChecks: []string{"postgres"},
	})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLive(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})

	t.Run("generated when absent", func(t *testing.T) {
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("propagated when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/live", nil)
		req.Header.Set("X-Request-ID", "req-123")

		rec := doRequest(s, req)
		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "req-123", decodeBody(t, rec).RequestID)
	})
}

func TestRequireAPIKey(t *testing.T) {
	config := DefaultConfig()
	config.APIKeys = []string{"secret-key"}
	s := newTestServer(config, Dependencies{})

	t.Run("missing key", func(t *testing.T) {
		rec := doRequest(s, httptest.NewRequest(http.MethodPost, "/api/v1/completions", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", nil)
		req.Header.Set("X-API-Key", "guess")
		rec := doRequest(s, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type stubLimiter struct {
	allow bool
	err   error
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) {
	return l.allow, l.err
}

func TestRateLimit(t *testing.T) {
	t.Run("over the limit", func(t *testing.T) {
		s := newTestServer(DefaultConfig(), Dependencies{RateLimiter: &stubLimiter{allow: false}})

		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("limiter outage fails open", func(t *testing.T) {
		s := newTestServer(DefaultConfig(), Dependencies{
			RateLimiter: &stubLimiter{allow: false, err: errors.New("redis down")},
		})

		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled without a limiter", func(t *testing.T) {
		s := newTestServer(DefaultConfig(), Dependencies{})
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/completions", nil)
	req.Header.Set("Origin", "https://kurslab.kz")

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://kurslab.kz", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetStreak_InvalidAtParam(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})

	url := "/api/v1/users/a1b2c3d4-0000-4000-8000-000000000001/streak?at=not-a-date"
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, url, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_at", decodeBody(t, rec).Error.Code)
}

func TestRecordCompletion_InvalidBody(t *testing.T) {
	s := newTestServer(DefaultConfig(), Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", nil)
	rec := doRequest(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeBody(t, rec).Error.Code)
}
