package category

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("category not found")

// Repository provides access to category rows.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id int) (Category, error)
}

type InMemoryRepository struct {
	mu    sync.RWMutex
	items []Category
}

func NewInMemoryRepository(seed []Category) *InMemoryRepository {
	return &InMemoryRepository{items: append([]Category(nil), seed...)}
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Category(nil), r.items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int) (Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.items {
		if c.CategoryID == id {
			return c, nil
		}
	}
	return Category{}, ErrNotFound
}
