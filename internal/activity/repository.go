package activity

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrInvalidEntry = errors.New("activity entry requires a user and an action")

type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	// List returns the most recent entries first.
	List(ctx context.Context, limit int) ([]Entry, error)
}

type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

func (r *InMemoryRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.nextID
	r.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *InMemoryRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		out = append(out, r.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
