// Package session maps browser sessions to their cart and profile.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/cart"
)

// Journal persists carts across restarts.
type Journal interface {
	// Observe returns the observer that records snapshots of the given session.
	Observe(sessionID string) cart.Observer
	Load(ctx context.Context, sessionID string) ([]cart.Line, error)
	// Forget drops pending and persisted state of the session.
	Forget(ctx context.Context, sessionID string) error
}

// Session is one browsing session.
type Session struct {
	ID   string
	Cart *cart.Store

	profile  atomic.Pointer[account.Profile]
	lastSeen time.Time // guarded by Registry.mu
	detach   func()
}

// Profile returns the profile set by registration.
func (s *Session) Profile() (*account.Profile, bool) {
	p := s.profile.Load()
	return p, p != nil
}

func (s *Session) SetProfile(p *account.Profile) {
	s.profile.Store(p)
}

// Options configures a Registry.
type Options struct {
	// TTL is the idle time after which a session is evicted. Defaults to 24h.
	TTL time.Duration
	// SweepInterval is the eviction check period. Defaults to 1m.
	SweepInterval time.Duration
	KeyFunc       cart.KeyFunc
	// Journal is optional.
	Journal       Journal
	MeterProvider metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.KeyFunc == nil {
		o.KeyFunc = cart.ByProduct
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Registry holds live sessions.
type Registry struct {
	opts   Options
	now    func() time.Time
	active metric.Int64UpDownCounter

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry.
func NewRegistry(opts Options) (*Registry, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("github.com/xenking/storefront/internal/session")
	active, err := meter.Int64UpDownCounter("storefront.sessions.active",
		metric.WithDescription("Number of live browsing sessions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create sessions counter")
	}

	return &Registry{
		opts:     opts,
		now:      time.Now,
		active:   active,
		sessions: make(map[string]*Session),
	}, nil
}

// Resolve returns the session with the given id. Unknown ids are restored
// from the journal when it holds a cart for them; otherwise a new session
// with a fresh id is created. Callers compare the returned ID with the one
// they passed to detect a new session.
func (r *Registry) Resolve(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		id = ""
	}

	if id != "" {
		r.mu.Lock()
		s, ok := r.sessions[id]
		if ok {
			s.lastSeen = r.now()
		}
		r.mu.Unlock()
		if ok {
			return s, nil
		}
	}

	var restored []cart.Line
	if id != "" && r.opts.Journal != nil {
		lines, err := r.opts.Journal.Load(ctx, id)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, errors.Wrap(err, "restore cart")
		case err != nil:
			zctx.From(ctx).Warn("Failed to restore cart",
				zap.String("session_id", id),
				zap.Error(err),
			)
		default:
			restored = lines
		}
	}
	if len(restored) == 0 {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A concurrent request may have restored the same session.
	if s, ok := r.sessions[id]; ok {
		s.lastSeen = r.now()
		return s, nil
	}

	s := &Session{
		ID:       id,
		Cart:     cart.New(cart.WithKeyFunc(r.opts.KeyFunc), cart.WithLines(restored)),
		lastSeen: r.now(),
	}
	if r.opts.Journal != nil {
		s.detach = s.Cart.Subscribe(r.opts.Journal.Observe(id))
	}
	r.sessions[id] = s
	r.active.Add(ctx, 1)

	if len(restored) > 0 {
		zctx.From(ctx).Debug("Cart restored",
			zap.String("session_id", id),
			zap.Int("lines", len(restored)),
		)
	}
	return s, nil
}

// Get returns a live session without creating one.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Live reports whether id names a live session. It does not touch the session.
func (r *Registry) Live(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were evicted.
func (r *Registry) Sweep(ctx context.Context) int {
	deadline := r.now().Add(-r.opts.TTL)

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastSeen.Before(deadline) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	lg := zctx.From(ctx)
	for _, s := range expired {
		if s.detach != nil {
			s.detach()
		}
		if r.opts.Journal != nil {
			if err := r.opts.Journal.Forget(ctx, s.ID); err != nil {
				lg.Warn("Failed to drop persisted cart",
					zap.String("session_id", s.ID),
					zap.Error(err),
				)
			}
		}
		r.active.Add(ctx, -1)
	}
	if len(expired) > 0 {
		lg.Debug("Sessions evicted", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
