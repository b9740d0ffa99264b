// Package handler implements the storefront JSON API.
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/session"
)

// Catalog serves product views.
type Catalog interface {
	List(ctx context.Context) ([]product.View, error)
	Get(ctx context.Context, id string) (*product.View, error)
	Create(ctx context.Context, d product.Draft, images []product.Image) (*product.View, error)
}

// Accounts registers users.
type Accounts interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.Profile, error)
}

// Sessions resolves the session of a request.
type Sessions interface {
	Resolve(ctx context.Context, id string) (*session.Session, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	CookieName   string
	CookieSecure bool
	// CookieMaxAge is the session cookie lifetime. Zero makes it a browser
	// session cookie.
	CookieMaxAge time.Duration
	Currency     string
	// Heartbeat is the keep-alive period of cart event streams.
	Heartbeat time.Duration
	// AllowProductCreate serves POST /api/products.
	AllowProductCreate bool
	MeterProvider      metric.MeterProvider
}

func (c *Config) setDefaults() {
	if c.CookieName == "" {
		c.CookieName = "storefront_session"
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.MeterProvider == nil {
		c.MeterProvider = otel.GetMeterProvider()
	}
}

// Handler serves the /api routes.
type Handler struct {
	cfg      Config
	catalog  Catalog
	accounts Accounts
	sessions Sessions
	cartOps  metric.Int64Counter

	closing   chan struct{}
	closeOnce sync.Once
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, catalog Catalog, accounts Accounts, sessions Sessions) (*Handler, error) {
	cfg.setDefaults()

	meter := cfg.MeterProvider.Meter("github.com/xenking/storefront/internal/handler")
	cartOps, err := meter.Int64Counter("storefront.cart.operations",
		metric.WithDescription("Cart mutations by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart operations counter")
	}

	return &Handler{
		cfg:      cfg,
		catalog:  catalog,
		accounts: accounts,
		sessions: sessions,
		cartOps:  cartOps,
		closing:  make(chan struct{}),
	}, nil
}

// Close ends open cart event streams. Server.Shutdown does not wait for them
// otherwise.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Register adds the API routes to r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	if h.cfg.AllowProductCreate {
		api.HandleFunc("/products", h.CreateProduct).Methods(http.MethodPost)
	}

	s := api.NewRoute().Subrouter()
	s.Use(h.withSession)
	s.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	s.HandleFunc("/cart/items", h.AddItem).Methods(http.MethodPost)
	s.HandleFunc("/cart/items/{key}", h.UpdateItem).Methods(http.MethodPut)
	s.HandleFunc("/cart/items/{key}", h.RemoveItem).Methods(http.MethodDelete)
	s.HandleFunc("/cart/events", h.CartEvents).Methods(http.MethodGet)
	s.HandleFunc("/checkout", h.GetCheckout).Methods(http.MethodGet)
	s.HandleFunc("/checkout/complete", h.CompleteCheckout).Methods(http.MethodPost)
	s.HandleFunc("/register", h.RegisterAccount).Methods(http.MethodPost)
	s.HandleFunc("/session/profile", h.GetProfile).Methods(http.MethodGet)
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// withSession resolves the session from its cookie, issuing a new cookie when
// the session was created or replaced.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(h.cfg.CookieName); err == nil {
			id = c.Value
		}

		s, err := h.sessions.Resolve(r.Context(), id)
		if err != nil {
			zctx.From(r.Context()).Error("Resolve session", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "session unavailable")
			return
		}
		if s.ID != id {
			http.SetCookie(w, h.cookie(s.ID))
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		ctx = zctx.With(ctx, zap.String("session_id", s.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookie(id string) *http.Cookie {
	c := &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cfg.CookieMaxAge > 0 {
		c.MaxAge = int(h.cfg.CookieMaxAge.Seconds())
	}
	return c
}

func (h *Handler) countCartOp(ctx context.Context, op string) {
	h.cartOps.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
