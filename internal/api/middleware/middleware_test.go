package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mw "github.com/kiranshivaraju/sketchforge/internal/api/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock Cache ---

type mockCache struct {
	counter int64
	keys    []string
	err     error
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ string) error                          { return nil }
func (m *mockCache) Ping(_ context.Context) error                                      { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.keys = append(m.keys, key)
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hashToken(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

// ========================================
// Admin Auth Tests
// ========================================

func TestAdminAuth_DisabledPassesThrough(t *testing.T) {
	auth := mw.NewAdminAuth("")
	assert.False(t, auth.Enabled())

	w := httptest.NewRecorder()
	auth.Require(okHandler()).ServeHTTP(w, httptest.NewRequest("DELETE", "/queue/clear/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	auth := mw.NewAdminAuth(hashToken(t, "s3cret-admin"))

	w := httptest.NewRecorder()
	auth.Require(okHandler()).ServeHTTP(w, httptest.NewRequest("DELETE", "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAdminAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewAdminAuth(hashToken(t, "s3cret-admin"))

	req := httptest.NewRequest("DELETE", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	auth.Require(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_WrongToken(t *testing.T) {
	auth := mw.NewAdminAuth(hashToken(t, "s3cret-admin"))

	req := httptest.NewRequest("DELETE", "/test", nil)
	req.Header.Set("Authorization", "Bearer guess")
	w := httptest.NewRecorder()
	auth.Require(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
}

func TestAdminAuth_ValidToken(t *testing.T) {
	auth := mw.NewAdminAuth(hashToken(t, "s3cret-admin"))

	req := httptest.NewRequest("DELETE", "/test", nil)
	req.Header.Set("Authorization", "bearer s3cret-admin")
	w := httptest.NewRecorder()
	auth.Require(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Rate Limit Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, nil)

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:10.0.0.7"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60}
	rl := mw.NewRateLimit(mc, 60, nil)

	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	rl := mw.NewRateLimit(&mockCache{err: errors.New("redis down")}, 1, nil)

	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	rl := mw.NewRateLimit(&mockCache{}, 0, nil)

	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, "120", w.Header().Get("X-RateLimit-Limit"))
}

// ========================================
// Context helpers
// ========================================

func TestClientIP(t *testing.T) {
	trusted, err := mw.ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.254"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		fwd     string
		trusted mw.TrustedProxies
		want    string
	}{
		{"remote addr", "192.0.2.1:4000", "", nil, "192.0.2.1"},
		{"no port", "192.0.2.5", "", nil, "192.0.2.5"},
		{"forwarded ignored without trusted proxies", "198.51.100.7:80", "203.0.113.9", nil, "198.51.100.7"},
		{"forwarded ignored from untrusted peer", "198.51.100.7:80", "203.0.113.9", trusted, "198.51.100.7"},
		{"forwarded from trusted proxy", "10.0.0.1:80", "203.0.113.9", trusted, "203.0.113.9"},
		{"rightmost untrusted hop wins", "10.0.0.1:80", "1.1.1.1, 203.0.113.9, 10.2.3.4", trusted, "203.0.113.9"},
		{"bare trusted address", "192.0.2.254:80", "203.0.113.9", trusted, "203.0.113.9"},
		{"all hops trusted", "10.0.0.1:80", "10.9.9.9", trusted, "10.9.9.9"},
		{"trusted proxy without header", "10.0.0.1:80", "", trusted, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			assert.Equal(t, tt.want, mw.ClientIP(req, tt.trusted))
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := mw.ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = mw.ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestRateLimit_SpoofedForwardedHeaderSharesBucket(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, nil)

	for _, fwd := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", fwd)
		rl.Limit(okHandler()).ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, []string{"ratelimit:198.51.100.7", "ratelimit:198.51.100.7"}, mc.keys)
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(mw.RequestIDHeader))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(mw.RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-42", seen)
}

// ========================================
// Recovery / Logger
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	mw.Recovery(discardLogger())(panicking).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Recovery(discardLogger())(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_PreservesStatus(t *testing.T) {
	teapot := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	mw.Logger(discardLogger())(teapot).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}
