// Package postgres implements storage backed by PostgreSQL.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/db"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}
