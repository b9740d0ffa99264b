package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Save replaces the stored lines of the session with the snapshot. An empty
// snapshot removes the session's rows.
func (r *CartRepository) Save(ctx context.Context, sessionID string, snap cart.Snapshot) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return errors.Wrapf(err, "parse session id %q", sessionID)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE session_id = $1`, id); err != nil {
			return errors.Wrap(err, "delete lines")
		}

		lines := snap.Lines()
		if len(lines) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, l := range lines {
			sizes := l.Sizes
			if sizes == nil {
				sizes = []string{}
			}
			batch.Queue(`INSERT INTO cart_lines
				(session_id, position, line_key, product_id, name, unit_price, image, quantity, sizes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				id, i, l.Key, l.ProductID, l.Name, l.UnitPrice, l.Image, l.Quantity, sizes,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert lines")
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save cart %s", sessionID)
	}
	return nil
}

// Load returns the stored lines of the session in cart order. Unknown sessions
// have no lines.
func (r *CartRepository) Load(ctx context.Context, sessionID string) ([]cart.Line, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse session id %q", sessionID)
	}

	rows, err := r.pool.Query(ctx, `SELECT line_key, product_id, name, unit_price, image, quantity, sizes
		FROM cart_lines
		WHERE session_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load cart %s", sessionID)
	}

	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.Key, &l.ProductID, &l.Name, &l.UnitPrice, &l.Image, &l.Quantity, &l.Sizes)
		return l, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan cart %s", sessionID)
	}
	return lines, nil
}

// Delete removes the stored lines of the session.
func (r *CartRepository) Delete(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return errors.Wrapf(err, "parse session id %q", sessionID)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE session_id = $1`, id); err != nil {
		return errors.Wrapf(err, "delete cart %s", sessionID)
	}
	return nil
}

// Prune deletes carts not updated since before and returns the number of
// removed rows.
func (r *CartRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE session_id IN (
		SELECT session_id FROM cart_lines GROUP BY session_id HAVING max(updated_at) < $1
	)`, before)
	if err != nil {
		return 0, errors.Wrap(err, "prune carts")
	}
	return tag.RowsAffected(), nil
}

// SessionIDs returns the ids of all sessions with stored lines.
func (r *CartRepository) SessionIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT session_id FROM cart_lines`)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, errors.Wrap(err, "scan sessions")
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out, nil
}
