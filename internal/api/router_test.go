package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/provisioner/internal/api"
	mw "github.com/kiranshivaraju/provisioner/internal/api/middleware"
	"github.com/kiranshivaraju/provisioner/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub cache ---

type stubCache struct {
	count int64
}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) SetRequestStatus(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetRequestStatus(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.count++
	return c.count, nil
}

// --- router tests ---

func okJSON(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func newTestRouter(t *testing.T, withAdmin bool) http.Handler {
	t.Helper()
	deps := api.Dependencies{
		RateLimit:           mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler:       okJSON,
		PurgeRequestHandler: okJSON,
	}
	if withAdmin {
		hash, err := bcrypt.GenerateFromPassword([]byte("admin-token"), bcrypt.MinCost)
		require.NoError(t, err)
		deps.Admin, err = mw.NewAdminAuth(string(hash))
		require.NoError(t, err)
	}
	return api.NewRouter(deps)
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t, false)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
}

func TestRouter_UnwiredEndpoints_NotImplemented(t *testing.T) {
	router := newTestRouter(t, false)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/create-server"},
		{"POST", "/destroy-server"},
		{"GET", "/job/abc"},
		{"GET", "/requests/42/status"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, strings.NewReader("{}"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "NOT_IMPLEMENTED", errObj["code"])
		})
	}
}

func TestRouter_AdminDisabledWithoutToken(t *testing.T) {
	router := newTestRouter(t, false)

	req := httptest.NewRequest("DELETE", "/admin/requests/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, true)

	req := httptest.NewRequest("DELETE", "/admin/requests/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("DELETE", "/admin/requests/42", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, false)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify the stub satisfies the interface
var _ cache.Cache = (*stubCache)(nil)
