package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/backend"
	"github.com/xenking/storefront/internal/cartsync"
	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend.URL),
		zap.Bool("persistence", cfg.DatabaseURL != ""),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddReadinessCheck("gc", time.Second, health.GCMaxPauseCheck(500*time.Millisecond))

	// Backend REST client.
	client, err := backend.New(cfg.Backend.URL, backend.Options{
		Timeout:        cfg.Backend.Timeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create backend client")
	}
	healthSvc.AddReadinessCheck("backend", 5*time.Second, health.PingCheck("backend", client.Ping))

	// Optional cart persistence.
	var (
		journal session.Journal
		writer  *cartsync.Writer
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool.Ping))

		carts := postgres.NewCartRepository(pool)
		pruned, err := carts.Prune(ctx, time.Now().Add(-cfg.Session.TTL))
		if err != nil {
			return errors.Wrap(err, "prune carts")
		}
		lg.Info("Stale carts pruned", zap.Int64("rows", pruned))

		writer = cartsync.New(carts)
		known, err := writer.Warm(ctx, carts)
		if err != nil {
			return errors.Wrap(err, "warm cart index")
		}
		lg.Info("Cart index warmed", zap.Int("sessions", known))
		journal = writer
	}

	// Domain services.
	keyFunc, _ := cart.KeyFuncFor(cart.Identity(cfg.Cart.Identity))
	sessions, err := session.NewRegistry(session.Options{
		TTL:           cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
		KeyFunc:       keyFunc,
		Journal:       journal,
		MeterProvider: m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create session registry")
	}
	catalog := product.NewService(client, product.NewAdapter(cfg.Catalog.PlaceholderImage))
	accounts := account.NewService(client, backend.MessageOf)

	// HTTP handlers.
	h, err := handler.NewHandler(handler.Config{
		CookieName:         cfg.Session.CookieName,
		CookieSecure:       cfg.Session.Secure,
		CookieMaxAge:       cfg.Session.TTL,
		Currency:           cfg.Checkout.Currency,
		AllowProductCreate: cfg.Catalog.AllowCreate,
		MeterProvider:      m.MeterProvider(),
	}, catalog, accounts, sessions)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	router := mux.NewRouter()
	router.HandleFunc("/livez", healthSvc.LiveEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthSvc.ReadyEndpoint).Methods(http.MethodGet)
	h.Register(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.Max,
		Window:  cfg.RateLimit.Window,
		KeyFunc: httpmiddleware.SessionKey(cfg.Session.CookieName, sessions.Live),
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// No write timeout: cart event streams stay open.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("storefront", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "X-RateLimit-Remaining", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			limiter.Middleware(),
			httpmiddleware.Gzip(pgzip.BestSpeed),
		),
	}

	server.RegisterOnShutdown(h.Close)

	g, gctx := errgroup.WithContext(ctx)

	// Cart writes keep flowing while the server drains, so the writer stops
	// only after the server has shut down.
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	g.Go(func() error { return healthSvc.Run(gctx, 10*time.Second) })
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	if writer != nil {
		g.Go(func() error { return writer.Run(workCtx) })
	}

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		defer stopWork()

		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})

	healthSvc.SetReady(true)
	return g.Wait()
}
