package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTTL       = 30 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per key and forgets keys that have
// been idle for limiterIdleTTL.
type limiterSet[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*limiterEntry
	limit   rate.Limit
	burst   int
}

func newLimiterSet[K comparable](ctx context.Context, rps float64, burst int) *limiterSet[K] {
	s := &limiterSet[K]{
		entries: make(map[K]*limiterEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
	go s.sweep(ctx)
	return s
}

func (s *limiterSet[K]) get(key K) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (s *limiterSet[K]) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterIdleTTL)
			s.mu.Lock()
			for k, e := range s.entries {
				if e.lastSeen.Before(cutoff) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// tooManyRequests writes a problem body with a Retry-After hint derived from
// the limiter's refill rate.
func tooManyRequests(w http.ResponseWriter, lim *rate.Limiter) {
	retry := 1
	if l := float64(lim.Limit()); l > 0 && l < 1 {
		retry = int(math.Ceil(1 / l))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`))
}

// clientIP strips the port from RemoteAddr. chi's RealIP runs earlier and may
// already have replaced it with a bare address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitByIP limits unauthenticated routes such as login and signup.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	set := newLimiterSet[string](ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			lim := set.get(ip)
			if !lim.Allow() {
				log.Debug().Str("ip", ip).Str("path", r.URL.Path).Msg("ip rate limited")
				tooManyRequests(w, lim)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits authenticated routes per company. Requests without a
// tenant in context pass through.
func RateLimit(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	set := newLimiterSet[uuid.UUID](ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := TenantIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			lim := set.get(tenantID)
			if !lim.Allow() {
				log.Debug().Str("tenant_id", tenantID.String()).Str("path", r.URL.Path).Msg("tenant rate limited")
				tooManyRequests(w, lim)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
