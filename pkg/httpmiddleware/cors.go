package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures Cross-Origin Resource Sharing.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, PUT, DELETE, OPTIONS.
	AllowMethods []string
	// AllowHeaders, when empty, echoes Access-Control-Request-Headers.
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials lets browsers send the session cookie cross-origin.
	// A wildcard origin is then answered with the request origin instead.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, a negative value sends 0.
	MaxAge int
}

type corsPolicy struct {
	anyOrigin   bool
	echoOrigin  bool
	origins     map[string]string // lowercase -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		anyOrigin:   len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.ToLower(o)] = o
	}
	if p.anyOrigin && p.credentials {
		p.anyOrigin = false
		p.echoOrigin = true
	}
	if p.methods == "" {
		p.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when it is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.anyOrigin:
		return "*"
	case p.echoOrigin:
		return origin
	}
	return p.origins[strings.ToLower(origin)]
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	if allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", p.methods)
		if p.headers != "" {
			h.Set("Access-Control-Allow-Headers", p.headers)
		} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
		}
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// CORS answers preflight requests and decorates actual cross-origin requests.
// Origins match case-insensitively and Vary headers are set so shared caches
// keep per-origin responses apart.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !p.anyOrigin {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allow := p.allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, allow)
				return
			}

			h := w.Header()
			if !p.anyOrigin {
				h.Add("Vary", "Origin")
			}
			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if p.expose != "" {
					h.Set("Access-Control-Expose-Headers", p.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
