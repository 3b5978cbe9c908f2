package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/utils"
	"golang.org/x/time/rate"
)

// DefaultClientIdleTTL is how long an idle client's bucket is kept
const DefaultClientIdleTTL = 5 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client identifier
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// NewRateLimiter allows requestsPerMinute per client with the given burst
func NewRateLimiter(requestsPerMinute float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(requestsPerMinute / 60.0),
		burst:   burst,
		idleTTL: DefaultClientIdleTTL,
		now:     time.Now,
	}
}

// Allow takes a token from clientID's bucket
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.clients[clientID]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientID] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Cleanup drops clients idle for longer than the idle TTL and returns how many went
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for id, bucket := range rl.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(); n > 0 {
				Logger.WithField("clients", n).Debug("Dropped idle rate limit buckets")
			}
		}
	}
}

// retryAfter is the whole number of seconds until one token refills
func (rl *RateLimiter) retryAfter() string {
	if rl.limit <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(rl.limit))))
}

// Middleware rejects requests from clients that ran out of tokens with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIdentifier(r)) {
			w.Header().Set("Retry-After", rl.retryAfter())
			RespondRateLimited(w, errors.New("rate limit exceeded"), utils.RequestID(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIdentifier derives a stable 16 character id for the caller from its address,
// its admin subject when authenticated, the user agent product and the language.
func ClientIdentifier(r *http.Request) string {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		ip = realIP
	}
	parts := []string{"ip:" + ip}

	// admins behind one NAT get separate buckets
	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		parts = append(parts, "sub:"+claims.Subject)
	}
	if fields := strings.Fields(strings.ToLower(r.UserAgent())); len(fields) > 0 {
		parts = append(parts, "ua:"+fields[0])
	}
	if lang := strings.TrimSpace(r.Header.Get("Accept-Language")); len(lang) >= 2 {
		parts = append(parts, "lang:"+strings.ToLower(lang[:2]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}
