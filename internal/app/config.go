package app

import (
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; enables cart persistence when set" flag:"database-url"`
	Backend     BackendConfig
	Session     SessionConfig
	Cart        CartConfig
	Catalog     CatalogConfig
	Checkout    CheckoutConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// BackendConfig points at the catalog and account REST backend.
type BackendConfig struct {
	URL     string        `default:"http://localhost:5000" usage:"Backend REST API base URL" flag:"backend-url"`
	Timeout time.Duration `default:"10s" usage:"Backend request timeout" flag:"backend-timeout"`
}

// SessionConfig controls the session cookie and idle eviction.
type SessionConfig struct {
	CookieName    string        `default:"storefront_session" usage:"Session cookie name"`
	TTL           time.Duration `default:"24h" usage:"Idle time after which a session and its cart are dropped"`
	Secure        bool          `default:"false" usage:"Mark the session cookie Secure" flag:"session-secure"`
	SweepInterval time.Duration `default:"1m" usage:"Idle session check period"`
}

// CartConfig controls cart line identity.
type CartConfig struct {
	Identity string `default:"product" usage:"Cart line identity: product or product_size"`
}

// CatalogConfig controls product presentation.
type CatalogConfig struct {
	PlaceholderImage string `default:"/images/placeholder.png" usage:"Image shown for products without images"`
	AllowCreate      bool   `default:"false" usage:"Serve POST /api/products to create products on the backend"`
}

// CheckoutConfig controls the payment button.
type CheckoutConfig struct {
	Currency string `default:"USD" usage:"ISO 4217 currency of checkout amounts"`
}

// RateLimitConfig controls the per-session sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow the session cookie on cross-origin requests; requires explicit origins" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values aconfig cannot express with tags.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("backend url %q: must be an absolute http(s) URL", c.Backend.URL)
	}
	if _, ok := cart.KeyFuncFor(cart.Identity(c.Cart.Identity)); !ok {
		return errors.Errorf("cart identity %q: must be %q or %q",
			c.Cart.Identity, cart.IdentityProduct, cart.IdentityProductSize)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.CORS.AllowCredentials && slices.Contains(c.CORS.Origins, "*") {
		return errors.New("cors: credentials require an explicit origin list")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
