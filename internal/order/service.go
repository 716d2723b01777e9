package order

import (
	"context"
	"errors"
	"strings"
)

var ErrForbidden = errors.New("order belongs to another user")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 10000
)

// adminStatuses are the statuses an administrator may set.
var adminStatuses = map[string]struct{}{
	StatusReceived:   {},
	StatusProcessing: {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Service provides read access and administrative updates for orders.
// Orders are only ever created by the checkout finalizer.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

func (s *Service) ListForUser(ctx context.Context, userID int) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// GetForUser returns the order with its items when it belongs to userID.
func (s *Service) GetForUser(ctx context.Context, orderID, userID int) (Order, error) {
	ord, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if ord.UserID != userID {
		return Order{}, ErrForbidden
	}
	return ord, nil
}

type Page struct {
	Orders   []Order `json:"orders"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Total    int     `json:"total"`
}

// AdminList pages through orders matching filter. Page numbers are clamped
// to [1, MaxPage].
func (s *Service) AdminList(ctx context.Context, filter ListFilter, page, pageSize int) (Page, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	if filter.Status != "" && !knownStatus(filter.Status) {
		return Page{}, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	orders, total, err := s.repo.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: orders, Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *Service) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *Service) AdminGet(ctx context.Context, orderID int) (Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

// UpdateStatus applies an administrative status change. Defect statuses are
// never set by hand; an order in a defect status can be moved to any
// administrative status once reconciled.
func (s *Service) UpdateStatus(ctx context.Context, orderID int, status string, trackingNumber *string) (Order, error) {
	status = strings.TrimSpace(status)
	if _, ok := adminStatuses[status]; !ok {
		return Order{}, ErrInvalidStatus
	}
	if trackingNumber != nil {
		tn := strings.TrimSpace(*trackingNumber)
		if tn == "" {
			trackingNumber = nil
		} else {
			trackingNumber = &tn
		}
	}
	return s.repo.UpdateStatus(ctx, orderID, status, trackingNumber)
}

func knownStatus(status string) bool {
	_, ok := adminStatuses[status]
	return ok || NeedsReview(status)
}
