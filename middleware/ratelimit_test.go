package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterMiddleware(t *testing.T) {
	// one token a minute, so nothing refills during the test
	limiter := NewRateLimiter(1, 5)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func(ua string) *http.Request {
		req := httptest.NewRequest("GET", "/bulk/progress", nil)
		req.Header.Set("User-Agent", ua)
		req.RemoteAddr = "192.168.1.1:12345"
		return req
	}

	// Same IP but different user agents have separate buckets
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newReq("Chrome/91.0"))
	assert.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 8; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newReq("Mozilla/5.0"))

		if i < 5 {
			assert.Equal(t, http.StatusOK, w.Code, "request %d should be allowed", i)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, w.Code, "request %d should be rate limited", i)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), string(ErrCodeRateLimited))
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newReq("Chrome/91.0"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, limiter.Len())
}

func TestClientIdentifier(t *testing.T) {
	base := func() *http.Request {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11)")
		return req
	}
	baseID := ClientIdentifier(base())
	assert.Len(t, baseID, 16)

	tests := []struct {
		name       string
		setup      func(*http.Request) *http.Request
		expectSame bool
	}{
		{"Same user agent product", func(req *http.Request) *http.Request {
			req.Header.Set("User-Agent", "Mozilla/5.0 (Windows)")
			return req
		}, true},
		{"Different IP", func(req *http.Request) *http.Request {
			req.RemoteAddr = "192.168.1.2:12345"
			return req
		}, false},
		{"Different user agent", func(req *http.Request) *http.Request {
			req.Header.Set("User-Agent", "Chrome/91.0")
			return req
		}, false},
		{"Forwarded for another client", func(req *http.Request) *http.Request {
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			return req
		}, false},
		{"Short Accept-Language is ignored", func(req *http.Request) *http.Request {
			req.Header.Set("Accept-Language", "e")
			return req
		}, true},
		{"Authenticated subject", func(req *http.Request) *http.Request {
			claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1"}}
			return req.WithContext(context.WithValue(req.Context(), claimsKey{}, claims))
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ClientIdentifier(tt.setup(base()))
			assert.Len(t, id, 16)
			if tt.expectSame {
				assert.Equal(t, baseID, id)
			} else {
				assert.NotEqual(t, baseID, id)
			}
		})
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(600, 5)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("client1")
	limiter.Allow("client2")
	now = now.Add(4 * time.Minute)
	limiter.Allow("client3")
	require.Equal(t, 3, limiter.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, limiter.Cleanup())
	assert.Equal(t, 1, limiter.Len())
	assert.Contains(t, limiter.clients, "client3")
}

func TestRateLimiterRunCleanupStopsWithContext(t *testing.T) {
	limiter := NewRateLimiter(600, 5)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		limiter.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancellation")
	}
}
