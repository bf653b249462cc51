package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Rafael-Renck/sistema-preco/internal/ctxkeys"
)

// keyedLimiter stores per-client rate limiters with automatic cleanup.
type keyedLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(r rate.Limit, burst int) *keyedLimiter {
	kl := &keyedLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    burst,
	}
	// Clean up stale entries every 5 minutes
	go kl.cleanup()
	return kl
}

func (kl *keyedLimiter) getLimiter(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	entry, exists := kl.limiters[key]
	if !exists {
		limiter := rate.NewLimiter(kl.rate, kl.burst)
		kl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanup removes entries not seen in the last 10 minutes to prevent memory leaks.
func (kl *keyedLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		kl.mu.Lock()
		for key, entry := range kl.limiters {
			if time.Since(entry.lastSeen) > 10*time.Minute {
				delete(kl.limiters, key)
			}
		}
		kl.mu.Unlock()
	}
}

// RateLimit returns middleware that limits requests per authenticated user,
// falling back to the client IP. r is the number of requests allowed per
// second, burst is the max burst size. Use it after Auth.
func RateLimit(r rate.Limit, burst int, logger *zap.Logger) func(http.Handler) http.Handler {
	kl := newKeyedLimiter(r, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !kl.getLimiter(key).Allow() {
				logger.Warn("rate limit exceeded", zap.String("client", key), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := ctxkeys.UserIDFrom(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + extractIP(r)
}

// extractIP gets the client IP, respecting X-Forwarded-For from reverse proxies.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP (the original client)
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
