package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the fixed window limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per window; 0 disables
	// limiting.
	Max int
	// Window is the length of one counting window.
	Window time.Duration
	// Key extracts the limiting key; the client IP is used when nil.
	Key func(*http.Request) string
}

type window struct {
	start time.Time
	count int
}

type limiter struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// take counts one request for key and reports whether it is within the limit
// together with the end of the current window.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.period)
	w, found := l.windows[key]
	if !found || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
	}
	reset = start.Add(l.period)
	if w.count >= l.max {
		return 0, reset, false
	}
	w.count++
	return l.max - w.count, reset, true
}

func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := now.Truncate(l.period)
	for key, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, key)
		}
	}
}

// RateLimit rejects requests beyond cfg.Max per key and window with 429. It
// evicts expired windows in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}
	l := &limiter{max: cfg.Max, period: cfg.Window, windows: make(map[string]*window)}

	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := l.take(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(reset.Sub(now).Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
