package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:    "0.0.0.0:8080",
		Backend: BackendConfig{URL: "http://localhost:5000", Timeout: 10 * time.Second},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Cart:    CartConfig{Identity: "product"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "product size identity", mutate: func(c *Config) { c.Cart.Identity = "product_size" }},
		{name: "relative backend", mutate: func(c *Config) { c.Backend.URL = "/api" }, wantErr: "backend url"},
		{name: "ftp backend", mutate: func(c *Config) { c.Backend.URL = "ftp://host" }, wantErr: "backend url"},
		{name: "unknown identity", mutate: func(c *Config) { c.Cart.Identity = "sku" }, wantErr: "cart identity"},
		{name: "zero ttl", mutate: func(c *Config) { c.Session.TTL = 0 }, wantErr: "session ttl"},
		{
			name: "credentials with wildcard",
			mutate: func(c *Config) {
				c.CORS = CORSConfig{Origins: []string{"https://shop.example.com", "*"}, AllowCredentials: true}
			},
			wantErr: "explicit origin",
		},
		{
			name: "credentials with explicit origins",
			mutate: func(c *Config) {
				c.CORS = CORSConfig{Origins: []string{"https://shop.example.com"}, AllowCredentials: true}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	require.NoError(t, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		SkipEnv:   true,
		SkipFiles: true,
	}).Load())

	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.False(t, cfg.CORS.AllowCredentials)
	assert.False(t, cfg.Catalog.AllowCreate)
	assert.Equal(t, "product", cfg.Cart.Identity)
	require.NoError(t, cfg.Validate())
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Run("platform env", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/storefront")
		t.Setenv("PORT", "9000")

		cfg := validConfig()
		cfg.applyPlatformDefaults()

		assert.Equal(t, "postgres://db/storefront", cfg.DatabaseURL)
		assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	})

	t.Run("explicit values win", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/other")
		t.Setenv("PORT", "9000")

		cfg := validConfig()
		cfg.DatabaseURL = "postgres://db/storefront"
		cfg.Addr = "127.0.0.1:8081"
		cfg.applyPlatformDefaults()

		assert.Equal(t, "postgres://db/storefront", cfg.DatabaseURL)
		assert.Equal(t, "127.0.0.1:8081", cfg.Addr)
	})

	t.Run("unset", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("PORT", "")

		cfg := validConfig()
		cfg.applyPlatformDefaults()

		assert.Empty(t, cfg.DatabaseURL)
		assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	})
}
