package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound        = errors.New("cart item not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// Repository provides access to cart lines.
type Repository interface {
	// Add inserts the line or increments the quantity of an existing one.
	Add(ctx context.Context, userID, productID, qty int) (Line, error)
	// Lines returns the user's lines, most recently added first.
	Lines(ctx context.Context, userID int) ([]Line, error)
	SetQuantity(ctx context.Context, userID, productID, qty int) (Line, error)
	Remove(ctx context.Context, userID, productID int) error
	// Clear removes every line of the user. Clearing an empty cart succeeds.
	Clear(ctx context.Context, userID int) error
	Count(ctx context.Context, userID int) (int, error)
}

type lineKey struct {
	userID    int
	productID int
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu    sync.RWMutex
	lines map[lineKey]Line
	now   func() time.Time
}

func NewInMemoryRepository(seed []Line) *InMemoryRepository {
	r := &InMemoryRepository{
		lines: make(map[lineKey]Line, len(seed)),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, l := range seed {
		r.lines[lineKey{l.UserID, l.ProductID}] = l
	}
	return r
}

func (r *InMemoryRepository) Add(ctx context.Context, userID, productID, qty int) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := lineKey{userID, productID}
	now := r.now()
	l, ok := r.lines[k]
	if !ok {
		l = Line{UserID: userID, ProductID: productID, AddedAt: now}
	}
	l.Quantity += qty
	l.UpdatedAt = now
	r.lines[k] = l
	return l, nil
}

func (r *InMemoryRepository) Lines(ctx context.Context, userID int) ([]Line, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Line, 0)
	for k, l := range r.lines {
		if k.userID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) SetQuantity(ctx context.Context, userID, productID, qty int) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := lineKey{userID, productID}
	l, ok := r.lines[k]
	if !ok {
		return Line{}, ErrNotFound
	}
	l.Quantity = qty
	l.UpdatedAt = r.now()
	r.lines[k] = l
	return l, nil
}

func (r *InMemoryRepository) Remove(ctx context.Context, userID, productID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := lineKey{userID, productID}
	if _, ok := r.lines[k]; !ok {
		return ErrNotFound
	}
	delete(r.lines, k)
	return nil
}

func (r *InMemoryRepository) Clear(ctx context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.lines {
		if k.userID == userID {
			delete(r.lines, k)
		}
	}
	return nil
}

func (r *InMemoryRepository) Count(ctx context.Context, userID int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.lines {
		if k.userID == userID {
			n++
		}
	}
	return n, nil
}
