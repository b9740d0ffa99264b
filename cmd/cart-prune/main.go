// Command cart-prune deletes persisted carts that have not changed for a while.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		olderThan   time.Duration
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.DurationVar(&olderThan, "older-than", 24*time.Hour, "delete carts idle for longer than this")
	flag.BoolVar(&dryRun, "dry-run", false, "only run migrations and report the cutoff")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if olderThan <= 0 {
		slog.Error("--older-than must be positive")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, time.Now().Add(-olderThan), dryRun); err != nil {
		slog.Error("prune failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, cutoff time.Time, dryRun bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if dryRun {
		slog.Info("dry run, nothing deleted", slog.Time("cutoff", cutoff))
		return nil
	}

	rows, err := postgres.NewCartRepository(pool).Prune(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "prune carts")
	}

	slog.Info("pruned carts", slog.Time("cutoff", cutoff), slog.Int64("rows", rows))
	return nil
}
