// Package cartsync persists cart snapshots in the background.
//
// Cart observers run while the cart is locked, so the Writer only records
// the latest snapshot per session and wakes its Run loop. Snapshots that
// arrive faster than they are written coalesce into one save.
package cartsync

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	shutdownFlushTimeout = 5 * time.Second

	retryMinDelay = time.Second
	retryMaxDelay = time.Minute

	knownCapacity = 1_000_000
	knownFPR      = 0.001
)

// SessionLister enumerates the sessions that have a persisted cart.
type SessionLister interface {
	SessionIDs(ctx context.Context) ([]string, error)
}

// Writer saves cart snapshots to a cart.Repository.
type Writer struct {
	repo cart.Repository
	wake chan struct{}

	mu      sync.Mutex
	pending map[string]cart.Snapshot
	// known holds every session saved since Warm. Nil until Warm succeeds.
	known *bloom.BloomFilter

	// io serializes flushes and deletes. A flush holds it from taking the
	// pending batch until failed saves are queued again.
	io sync.Mutex

	retryMin time.Duration
	retryMax time.Duration
}

// New creates a Writer for repo.
func New(repo cart.Repository) *Writer {
	return &Writer{
		repo:    repo,
		wake:    make(chan struct{}, 1),
		pending: make(map[string]cart.Snapshot),

		retryMin: retryMinDelay,
		retryMax: retryMaxDelay,
	}
}

// Observe returns a cart observer that queues snapshots of the session.
func (w *Writer) Observe(sessionID string) cart.Observer {
	return func(s cart.Snapshot) {
		w.mu.Lock()
		w.pending[sessionID] = s
		w.mu.Unlock()

		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// Warm fills the known session filter from lister and returns the number of
// sessions it holds. Afterwards Load answers sessions that were never saved
// without querying the repository. Call Warm before Run.
func (w *Writer) Warm(ctx context.Context, lister SessionLister) (int, error) {
	ids, err := lister.SessionIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list sessions")
	}

	filter := bloom.NewWithEstimates(uint(max(2*len(ids), knownCapacity)), knownFPR)
	for _, id := range ids {
		filter.AddString(id)
	}

	w.mu.Lock()
	w.known = filter
	w.mu.Unlock()
	return len(ids), nil
}

// Load returns the persisted lines of the session.
func (w *Writer) Load(ctx context.Context, sessionID string) ([]cart.Line, error) {
	w.mu.Lock()
	unknown := w.known != nil && !w.known.TestString(sessionID)
	w.mu.Unlock()
	if unknown {
		return nil, nil
	}
	return w.repo.Load(ctx, sessionID)
}

// Forget drops any queued snapshot of the session and deletes its persisted
// cart.
func (w *Writer) Forget(ctx context.Context, sessionID string) error {
	w.io.Lock()
	defer w.io.Unlock()

	w.mu.Lock()
	delete(w.pending, sessionID)
	w.mu.Unlock()

	if err := w.repo.Delete(ctx, sessionID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

// Pending returns the number of queued sessions.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.pending)
}

// Flush saves all queued snapshots and returns the number of failed saves.
// A failed snapshot is queued again unless a newer one arrived meanwhile.
func (w *Writer) Flush(ctx context.Context) int {
	w.io.Lock()
	defer w.io.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]cart.Snapshot, len(batch))
	w.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	lg := zctx.From(ctx)
	failed := 0
	for id, snap := range batch {
		if err := w.repo.Save(ctx, id, snap); err != nil {
			failed++
			lg.Warn("Failed to save cart",
				zap.String("session_id", id),
				zap.Error(err),
			)

			w.mu.Lock()
			if _, newer := w.pending[id]; !newer {
				w.pending[id] = snap
			}
			w.mu.Unlock()
			continue
		}

		w.mu.Lock()
		if w.known != nil {
			w.known.AddString(id)
		}
		w.mu.Unlock()
	}
	return failed
}

// Run writes queued snapshots until ctx is done, then performs a final flush.
// Failed saves are retried with exponential backoff even when no cart changes.
func (w *Writer) Run(ctx context.Context) error {
	lg := zctx.From(ctx)

	var (
		retry   *time.Timer
		retryC  <-chan time.Time
		backoff = w.retryMin
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			failed := w.Flush(flushCtx)
			cancel()
			if failed > 0 {
				lg.Error("Carts not saved on shutdown", zap.Int("count", failed))
			}
			return nil
		case <-w.wake:
		case <-retryC:
			retryC = nil
		}

		if w.Flush(ctx) == 0 {
			backoff = w.retryMin
			continue
		}
		if retryC != nil {
			// A retry is already scheduled.
			continue
		}
		if retry == nil {
			retry = time.NewTimer(backoff)
		} else {
			retry.Reset(backoff)
		}
		retryC = retry.C
		lg.Debug("Cart save retry scheduled", zap.Duration("delay", backoff))
		backoff = min(2*backoff, w.retryMax)
	}
}
