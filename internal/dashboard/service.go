package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wichananm65/smart-cart-backend/internal/order"
)

const RecentLimit = 5

type OrderSource interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
	AdminList(ctx context.Context, filter order.ListFilter, page, pageSize int) (order.Page, error)
}

type ProductCounter interface {
	Count(ctx context.Context) (int, error)
}

type CustomerCounter interface {
	CountCustomers(ctx context.Context) (int, error)
}

type Stats struct {
	TotalOrders    int           `json:"totalOrders"`
	OrderReceived  int           `json:"orderReceived"`
	Processing     int           `json:"processing"`
	NeedsReview    int           `json:"needsReview"`
	TotalProducts  int           `json:"totalProducts"`
	TotalCustomers int           `json:"totalCustomers"`
	RecentOrders   []order.Order `json:"recentOrders"`
}

type Service struct {
	orders    OrderSource
	products  ProductCounter
	customers CustomerCounter
}

func NewService(orders OrderSource, products ProductCounter, customers CustomerCounter) *Service {
	return &Service{orders: orders, products: products, customers: customers}
}

// Stats runs the independent counts concurrently. Any failure fails the
// whole snapshot.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		st     Stats
		counts map[string]int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.orders.CountByStatus(ctx)
		return err
	})
	g.Go(func() error {
		page, err := s.orders.AdminList(ctx, order.ListFilter{}, 1, RecentLimit)
		st.RecentOrders = page.Orders
		return err
	})
	g.Go(func() error {
		var err error
		st.TotalProducts, err = s.products.Count(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		st.TotalCustomers, err = s.customers.CountCustomers(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	for status, n := range counts {
		st.TotalOrders += n
		if order.NeedsReview(status) {
			st.NeedsReview += n
		}
	}
	st.OrderReceived = counts[order.StatusReceived]
	st.Processing = counts[order.StatusProcessing]
	if st.RecentOrders == nil {
		st.RecentOrders = []order.Order{}
	}
	return st, nil
}
