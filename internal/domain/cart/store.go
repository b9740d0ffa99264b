// Package cart implements the session shopping cart: an ordered set of lines
// merged by identity key, with synchronous change notification.
package cart

import (
	"context"
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a line can hold. Merges and updates
// beyond it saturate. It matches the range of the persisted quantity column.
const MaxQuantity = math.MaxInt32

// Observer receives the cart state after every committed mutation.
//
// Observers run synchronously while the store is locked: they must not call
// back into the store, and slow work should be handed off to a goroutine.
type Observer func(Snapshot)

// Repository persists cart contents per session.
type Repository interface {
	Save(ctx context.Context, sessionID string, snap Snapshot) error
	Load(ctx context.Context, sessionID string) ([]Line, error)
	Delete(ctx context.Context, sessionID string) error
}

// Option configures a Store.
type Option func(*Store)

// WithKeyFunc sets the identity key policy. Defaults to ByProduct.
func WithKeyFunc(fn KeyFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.key = fn
		}
	}
}

// WithLines seeds the store with previously saved lines. Lines are normalized
// and merged exactly as Add would, without notifying observers.
func WithLines(lines []Line) Option {
	return func(s *Store) {
		s.seed = lines
	}
}

type subscription struct {
	id uint64
	fn Observer
}

// Store holds the cart lines of one session. All methods are safe for
// concurrent use; each call runs to completion, including observer
// notification, before the next one starts.
type Store struct {
	mu        sync.Mutex
	key       KeyFunc
	lines     []Line
	index     map[string]int
	observers []subscription
	nextID    uint64
	seed      []Line
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		key:   ByProduct,
		index: make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	for _, l := range s.seed {
		s.add(l)
	}
	s.seed = nil
	return s
}

// NewSnapshot builds a Snapshot from lines, keyed with ByProduct when a line
// carries no key.
func NewSnapshot(lines []Line) Snapshot {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = l.clone()
		if out[i].Key == "" {
			out[i].Key = ByProduct(l)
		}
	}
	return Snapshot{lines: out}
}

// Add merges candidate into the cart. A quantity below 1 is raised to 1. When
// a line with the same key exists its quantity is increased by the candidate
// quantity and its display fields and sizes are kept; otherwise the candidate
// is appended. Quantities never exceed MaxQuantity.
func (s *Store) Add(candidate Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.add(candidate)
	s.notify()
}

func (s *Store) add(candidate Line) {
	candidate.Quantity = clampQuantity(candidate.Quantity)
	k := s.key(candidate)
	if i, ok := s.index[k]; ok {
		if q := s.lines[i].Quantity; candidate.Quantity > MaxQuantity-q {
			s.lines[i].Quantity = MaxQuantity
		} else {
			s.lines[i].Quantity = q + candidate.Quantity
		}
		return
	}
	l := candidate.clone()
	l.Key = k
	s.index[k] = len(s.lines)
	s.lines = append(s.lines, l)
}

func clampQuantity(q int) int {
	return min(max(q, 1), MaxQuantity)
}

// UpdateQuantity sets the quantity of the line with the given key. A quantity
// below 1 removes the line and one above MaxQuantity is lowered to it. Unknown
// keys are ignored.
func (s *Store) UpdateQuantity(key string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[key]
	if !ok {
		return
	}
	if quantity < 1 {
		s.removeAt(i)
	} else {
		s.lines[i].Quantity = min(quantity, MaxQuantity)
	}
	s.notify()
}

// Remove deletes the line with the given key if present.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[key]
	if !ok {
		return
	}
	s.removeAt(i)
	s.notify()
}

// Clear removes every line.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.lines) == 0 {
		return
	}
	s.lines = nil
	clear(s.index)
	s.notify()
}

// Drain removes every line and returns the cart as it was, in one step.
// Mutations from other goroutines land either in the returned snapshot or in
// the emptied cart.
func (s *Store) Drain() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.lines) == 0 {
		return Snapshot{}
	}
	drained := Snapshot{lines: s.lines}
	s.lines = nil
	clear(s.index)
	s.notify()
	return drained
}

func (s *Store) removeAt(i int) {
	delete(s.index, s.lines[i].Key)
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	for j := i; j < len(s.lines); j++ {
		s.index[s.lines[j].Key] = j
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *Store) snapshot() Snapshot {
	lines := make([]Line, len(s.lines))
	for i, l := range s.lines {
		lines[i] = l.clone()
	}
	return Snapshot{lines: lines}
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []Line {
	return s.Snapshot().Lines()
}

// Total returns the cart total, recomputed from the lines.
func (s *Store) Total() decimal.Decimal {
	return s.Snapshot().Total()
}

// LineCount returns the total number of units in the cart.
func (s *Store) LineCount() int {
	return s.Snapshot().LineCount()
}

// DistinctLines returns the number of lines in the cart.
func (s *Store) DistinctLines() int {
	return s.Snapshot().DistinctLines()
}

// Subscribe registers fn to be called after each mutation and returns a
// function that removes it. Calling the returned function more than once is
// harmless.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify() {
	if len(s.observers) == 0 {
		return
	}
	snap := s.snapshot()
	for _, sub := range s.observers {
		sub.fn(snap)
	}
}
