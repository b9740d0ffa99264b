// Package backend is the REST client for the catalog and account backend.
package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxBodySize        = 8 << 20
	instrumentationLib = "github.com/xenking/storefront/internal/backend"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds every request. Defaults to 10s.
	Timeout        time.Duration
	Transport      http.RoundTripper
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Client calls the storefront backend REST API.
type Client struct {
	base   *url.URL
	http   *http.Client
	tracer trace.Tracer
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse backend url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("backend url %q: unsupported scheme", baseURL)
	}
	opts.setDefaults()

	return &Client{
		base: u,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport,
				otelhttp.WithTracerProvider(opts.TracerProvider),
				otelhttp.WithMeterProvider(opts.MeterProvider),
			),
		},
		tracer: opts.TracerProvider.Tracer(instrumentationLib),
	}, nil
}

// Ping checks that the backend answers HTTP requests. Any response below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String(), nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "ping", Err: err}
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &APIError{Op: "ping", StatusCode: resp.StatusCode}
	}
	return nil
}

// do performs a request with an optional JSON body and returns the body of a
// 2xx response.
func (c *Client) do(ctx context.Context, op, method string, body []byte, elem ...string) ([]byte, error) {
	return c.send(ctx, op, method, "application/json", body, elem...)
}

// send is do with an explicit request content type.
func (c *Client) send(ctx context.Context, op, method, contentType string, body []byte, elem ...string) (_ []byte, rerr error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(elem...).String(), r)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Header.Get("Content-Type"), data),
		}
	}
	return data, nil
}
