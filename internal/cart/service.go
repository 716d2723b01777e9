package cart

import (
	"context"
	"errors"

	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/product"
)

// Catalog is the subset of the product service the cart needs.
type Catalog interface {
	GetByID(ctx context.Context, id int) (product.Product, error)
	GetPrices(ctx context.Context, ids []int) (map[int]product.Product, error)
}

// Service orchestrates cart operations.
type Service struct {
	repo    Repository
	catalog Catalog
	calc    *money.Calculator
}

func NewService(repo Repository, catalog Catalog, calc *money.Calculator) *Service {
	return &Service{repo: repo, catalog: catalog, calc: calc}
}

// AddToCart adds qty of an in-stock product, incrementing an existing line.
func (s *Service) AddToCart(ctx context.Context, userID, productID, qty int) (Line, error) {
	if qty < 1 {
		return Line{}, ErrInvalidQuantity
	}
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return Line{}, ErrProductNotFound
		}
		return Line{}, err
	}
	if !p.InStock {
		return Line{}, ErrOutOfStock
	}
	return s.repo.Add(ctx, userID, productID, qty)
}

// ReadCart returns the raw lines without catalog data.
func (s *Service) ReadCart(ctx context.Context, userID int) ([]Line, error) {
	return s.repo.Lines(ctx, userID)
}

// Summary returns the lines with product details and totals at current
// prices. Lines whose product left the catalog are listed without a product
// and excluded from the totals.
func (s *Service) Summary(ctx context.Context, userID int) (Summary, error) {
	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	ids := make([]int, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.GetPrices(ctx, ids)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Items: make([]Item, 0, len(lines)), Count: len(lines)}
	priced := make([]money.Line, 0, len(lines))
	for _, l := range lines {
		item := Item{Line: l}
		if p, ok := products[l.ProductID]; ok {
			item.Product = &p
			priced = append(priced, money.Line{UnitPrice: p.PriceCents(), Quantity: l.Quantity})
		}
		sum.Items = append(sum.Items, item)
	}
	totals, err := s.calc.ComputeTotals(priced)
	if err != nil {
		return Summary{}, err
	}
	sum.Totals = totals
	return sum, nil
}

func (s *Service) Count(ctx context.Context, userID int) (int, error) {
	return s.repo.Count(ctx, userID)
}

// UpdateQuantity sets the line quantity; a quantity below one removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID, qty int) (*Line, error) {
	if qty < 1 {
		return nil, s.repo.Remove(ctx, userID, productID)
	}
	l, err := s.repo.SetQuantity(ctx, userID, productID, qty)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Service) Remove(ctx context.Context, userID, productID int) error {
	return s.repo.Remove(ctx, userID, productID)
}

// ClearCart empties a user's cart. It is safe to call repeatedly.
func (s *Service) ClearCart(ctx context.Context, userID int) error {
	return s.repo.Clear(ctx, userID)
}
