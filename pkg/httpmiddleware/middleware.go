// Package httpmiddleware contains net/http middleware shared by the storefront
// server.
package httpmiddleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route template matching r, or "" if none matches.
type RouteFinder func(r *http.Request) string

// MakeRouteFinder returns a RouteFinder that matches requests against router
// before it runs, so outer middleware can label by route.
func MakeRouteFinder(router *mux.Router) RouteFinder {
	return func(r *http.Request) string {
		var match mux.RouteMatch
		if !router.Match(r, &match) || match.Route == nil {
			return ""
		}
		tpl, err := match.Route.GetPathTemplate()
		if err != nil {
			return ""
		}
		return tpl
	}
}

// InjectLogger stores lg in the request context together with the request id,
// when one is present.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := zctx.Base(r.Context(), lg)
			if id := RequestIDFromContext(ctx); id != "" {
				ctx = zctx.With(ctx, zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TelemetryProvider supplies tracing and metrics providers.
type TelemetryProvider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and measures requests with otelhttp. Spans are named
// after the matched route.
func Instrument(service string, find RouteFinder, t TelemetryProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route := find(r); route != "" {
					return r.Method + " " + route
				}
				return r.Method
			}),
		)
	}
}

// Labeler adds the matched route to otelhttp metric attributes.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route := find(r); route != "" {
				if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
					l.Add(attribute.String("http.route", route))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LogRequests logs every completed request.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			lg := zctx.From(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int64("bytes", rec.written),
				zap.Duration("duration", time.Since(start)),
			}
			if route := find(r); route != "" {
				fields = append(fields, zap.String("route", route))
			}
			if rec.status >= http.StatusInternalServerError {
				lg.Warn("Request failed", fields...)
				return
			}
			lg.Debug("Request", fields...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
