// Package health serves liveness and readiness endpoints.
//
// Every registered check is polled in the background. A check turns unhealthy
// only after FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes, so a single slow backend response
// does not flap the endpoint.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports whether a dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Check describes a registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// FailureThreshold defaults to 3.
	FailureThreshold int
	// SuccessThreshold defaults to 1.
	SuccessThreshold int
}

// tracker is the runtime state of a Check. poll is only called from the
// check's own goroutine; healthy and lastErr are read by handlers.
type tracker struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails     int
	successes int
}

func (p *tracker) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.successes = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}

	p.lastErr.Store(nil)
	p.fails = 0
	p.successes++
	if p.successes >= p.SuccessThreshold {
		p.healthy.Store(true)
	}
}

func (p *tracker) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is unhealthy", true
}

// Health aggregates checks and the manual readiness switch.
type Health struct {
	ready atomic.Bool

	mu       sync.RWMutex
	trackers []*tracker
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy.
func (h *Health) Add(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	p := &tracker{Check: c}
	p.healthy.Store(true)

	h.mu.Lock()
	h.trackers = append(h.trackers, p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that fails /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Liveness, Timeout: timeout, Func: fn})
}

// AddReadinessCheck registers a check that fails /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Readiness, Timeout: timeout, Func: fn})
}

func (h *Health) list(kind Kind) []*tracker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*tracker
	for _, p := range h.trackers {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Run polls every check registered so far each interval until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	h.mu.RLock()
	trackers := slices.Clone(h.trackers)
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range trackers {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.poll(ctx)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					p.poll(ctx)
				}
			}
		})
	}
	return g.Wait()
}

// SetReady flips the manual readiness switch.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the switch is on and all readiness checks pass.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.list(Readiness) {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.list(Liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.list(Readiness))
	if !h.ready.Load() {
		failed = append(failed, failure{name: "_readiness", message: "service is not ready"})
	}
	writeStatus(w, failed)
}

type failure struct {
	name    string
	message string
}

func failures(trackers []*tracker) []failure {
	var out []failure
	for _, p := range trackers {
		if msg, failed := p.failure(); failed {
			out = append(out, failure{name: p.Name, message: msg})
		}
	}
	return out
}

// writeStatus writes {"status":"ok"} or a 503 with
// {"status":"unhealthy","checks":{name: message}}.
func writeStatus(w http.ResponseWriter, failed []failure) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failed) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		for _, f := range failed {
			e.FieldStart(f.name)
			e.Str(f.message)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
