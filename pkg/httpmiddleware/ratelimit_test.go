package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, setup func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(h, nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, nil).Code)
	}

	w := serve(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code    int
		message string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, 429, code)
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())

	for range 10 {
		w := serve(h, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.allow("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.allow("k", start.Add(59*time.Second))
	require.False(t, ok)

	// Halfway into the next window half of the previous count still applies.
	remaining, _, ok := l.allow("k", start.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	// Two windows later nothing carries over.
	remaining, _, ok = l.allow("k", start.Add(3*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestRateLimit_Evict(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	l.allow("a", start)
	l.allow("b", start.Add(90*time.Second))
	require.Equal(t, 2, l.Len())

	l.evict(start.Add(2 * time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	from := func(addr string) func(*http.Request) {
		return func(r *http.Request) { r.RemoteAddr = addr }
	}

	assert.Equal(t, http.StatusOK, serve(h, from("10.0.0.1:1234")).Code)
	assert.Equal(t, http.StatusOK, serve(h, from("10.0.0.2:1234")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, from("10.0.0.1:5678")).Code)
}

func TestRateLimit_SessionKey(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: SessionKey("sid", func(id string) bool { return id == "a" || id == "b" }),
	})(okHandler())
	withSession := func(id string) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: id}) }
	}

	assert.Equal(t, http.StatusOK, serve(h, withSession("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withSession("a")).Code)
	// Same IP, different session.
	assert.Equal(t, http.StatusOK, serve(h, withSession("b")).Code)
	// No cookie falls back to the IP.
	assert.Equal(t, http.StatusOK, serve(h, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, nil).Code)
}

func TestRateLimit_SessionKeyRotatingCookies(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     3,
		Window:  time.Minute,
		KeyFunc: SessionKey("sid", func(string) bool { return false }),
	})(okHandler())

	limited := 0
	for i := range 10 {
		id := "forged-" + strconv.Itoa(i)
		w := serve(h, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: id}) })
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 7, limited)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded list", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, remote: "192.168.1.1:4444", want: "203.0.113.50"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "192.168.1.1:4444", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote without port", remote: "192.168.1.1", want: "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
