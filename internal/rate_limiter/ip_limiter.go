// Package ratelimiter throttles REST clients with one token bucket per client.
package ratelimiter

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTTL      = 10 * time.Minute
	defaultInterval = time.Minute
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

type Option func(*Limiter)

// WithIdleTTL drops buckets of clients idle for longer than ttl, checking
// every interval.
func WithIdleTTL(ttl, interval time.Duration) Option {
	return func(l *Limiter) {
		l.ttl = ttl
		l.interval = interval
	}
}

func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) { l.key = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter allows each client a burst of requests per window, refilled evenly
// over the window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	requests int
	every    rate.Limit
	ttl      time.Duration
	interval time.Duration
	key      KeyFunc
	log      *slog.Logger
	now      func() time.Time

	stop context.CancelFunc
}

func New(requests int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:  make(map[string]*bucket),
		requests: requests,
		every:    rate.Every(window / time.Duration(requests)),
		ttl:      defaultTTL,
		interval: defaultInterval,
		key:      ClientIP,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	go l.evictIdle(ctx)

	return l
}

// Stop ends the eviction loop.
func (l *Limiter) Stop() { l.stop() }

func (l *Limiter) evictIdle(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := l.now().Add(-l.ttl)

			l.mu.Lock()
			for k, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Clients returns the number of buckets currently tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Take charges one request to key. When the bucket is empty it reports how
// long until the next request would be allowed.
func (l *Limiter) Take(key string) (remaining int, retryAfter time.Duration, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[key]
	if !found {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return 0, delay, false
	}

	return int(math.Max(0, math.Floor(b.limiter.TokensAt(now)))), 0, true
}

// ClientIP uses the last X-Forwarded-For hop, the one added by the nearest
// proxy, and falls back to the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if hop := strings.TrimSpace(hops[len(hops)-1]); hop != "" {
			return hop
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and the API's error
// envelope.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.key(r)
		remaining, retryAfter, ok := l.Take(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if ok {
			next.ServeHTTP(w, r)
			return
		}

		l.log.WarnContext(r.Context(), "rate limit exceeded",
			"client", key,
			"path", r.URL.Path,
			"method", r.Method,
			"retry_after", retryAfter)

		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		err := json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "Too many requests",
			"message": "Too many requests from this client, please try again later.",
		})
		if err != nil {
			l.log.ErrorContext(r.Context(), "failed to write rate limit response", "error", err)
		}
	})
}
