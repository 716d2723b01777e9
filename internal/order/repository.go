package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid order status")
	ErrNoItems       = errors.New("order has no items")
)

// Repository defines persistence operations for orders.
//
// InsertIfAbsent is the only way an order is created. It must be atomic with
// respect to PaymentReference: when a row with the same reference already
// exists (or wins a concurrent race) the existing row is returned with
// created=false and no error.
type Repository interface {
	FindByReference(ctx context.Context, reference string) (Order, error)
	InsertIfAbsent(ctx context.Context, ord Order) (Order, bool, error)
	// InsertItems stores all items or none of them.
	InsertItems(ctx context.Context, orderID int, items []Item) error
	UpdateStatus(ctx context.Context, orderID int, status string, trackingNumber *string) (Order, error)
	GetByID(ctx context.Context, orderID int) (Order, error)
	ListByUser(ctx context.Context, userID int) ([]Order, error)
	// List returns one page of the matching orders, newest first, plus the
	// number of matching orders.
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Order, int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// ListFilter narrows List. Zero values match every order.
type ListFilter struct {
	Status  string
	OrderID int
}

func (f ListFilter) matches(o Order) bool {
	return (f.Status == "" || o.Status == f.Status) && (f.OrderID == 0 || o.OrderID == f.OrderID)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu          sync.RWMutex
	orders      []Order
	byReference map[string]int
	items       map[int][]Item
	nextID      int
	nextItemID  int
	now         func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byReference: make(map[string]int),
		items:       make(map[int][]Item),
		nextID:      1,
		nextItemID:  1,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) FindByReference(ctx context.Context, reference string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byReference[reference]
	if !ok {
		return Order{}, ErrNotFound
	}
	return r.findLocked(id)
}

func (r *InMemoryRepository) InsertIfAbsent(ctx context.Context, ord Order) (Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byReference[ord.PaymentReference]; ok {
		existing, err := r.findLocked(id)
		return existing, false, err
	}
	now := r.now()
	ord.OrderID = r.nextID
	r.nextID++
	ord.CreatedAt = now
	ord.UpdatedAt = now
	ord.Items = nil
	r.orders = append(r.orders, ord)
	r.byReference[ord.PaymentReference] = ord.OrderID
	return ord, true, nil
}

func (r *InMemoryRepository) InsertItems(ctx context.Context, orderID int, items []Item) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.findLocked(orderID); err != nil {
		return err
	}
	now := r.now()
	batch := make([]Item, 0, len(items))
	for _, it := range items {
		it.ItemID = r.nextItemID
		r.nextItemID++
		it.OrderID = orderID
		it.CreatedAt = now
		batch = append(batch, it)
	}
	r.items[orderID] = append(r.items[orderID], batch...)
	return nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, orderID int, status string, trackingNumber *string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.orders {
		if r.orders[i].OrderID == orderID {
			r.orders[i].Status = status
			if trackingNumber != nil {
				tn := *trackingNumber
				r.orders[i].TrackingNumber = &tn
			}
			r.orders[i].UpdatedAt = r.now()
			return r.orders[i], nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *InMemoryRepository) GetByID(ctx context.Context, orderID int) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ord, err := r.findLocked(orderID)
	if err != nil {
		return Order{}, err
	}
	ord.Items = append([]Item(nil), r.items[orderID]...)
	return ord, nil
}

func (r *InMemoryRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.matches(o) {
			all = append(all, o)
		}
	}
	sortNewestFirst(all)
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Order{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *InMemoryRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, o := range r.orders {
		counts[o.Status]++
	}
	return counts, nil
}

// Count returns the number of stored orders.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

func (r *InMemoryRepository) findLocked(id int) (Order, error) {
	for _, o := range r.orders {
		if o.OrderID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].OrderID > orders[j].OrderID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
