package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero disables limiting.
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and previous fixed windows. The
// effective count weights the previous window by its overlap with a window
// ending now.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

// RateLimiter enforces a per-key sliding window limit.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewRateLimiter creates a RateLimiter. Stale keys are only evicted while Run
// is active.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// allow records a request for key and reports whether it is within the limit,
// along with the remaining budget and the current window reset time.
func (l *RateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found {
		w = &window{currStart: now.Truncate(l.cfg.Window)}
		l.windows[key] = w
	}

	if elapsed := now.Sub(w.currStart); elapsed >= l.cfg.Window {
		if elapsed >= 2*l.cfg.Window {
			w.prev = 0
		} else {
			w.prev = w.curr
		}
		w.curr = 0
		w.currStart = now.Truncate(l.cfg.Window)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/l.cfg.Window.Seconds()
	effective := w.prev*math.Max(overlap, 0) + w.curr
	resetAt = w.currStart.Add(l.cfg.Window)

	if effective >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}
	w.curr++
	return max(int(float64(l.cfg.Max)-effective-1), 0), resetAt, true
}

// Len returns the number of tracked keys.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

func (l *RateLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// Run evicts stale keys every two windows until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

// Middleware rejects requests over the limit with 429. Every limited response
// carries X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func (l *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if l.cfg.Max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := l.now()
			remaining, resetAt, ok := l.allow(l.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retry := max(resetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit is a shorthand for NewRateLimiter(cfg).Middleware() without
// background eviction.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewRateLimiter(cfg).Middleware()
}

// SessionKey keys requests by the named session cookie when known reports the
// session as live. Requests without a cookie, or with one the server never
// issued, are keyed by client IP, so rotating cookies does not escape the
// limit.
func SessionKey(cookie string, known func(id string) bool) func(*http.Request) string {
	return func(r *http.Request) string {
		if c, err := r.Cookie(cookie); err == nil && c.Value != "" && known(c.Value) {
			return "session:" + c.Value
		}
		return ClientIP(r)
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
