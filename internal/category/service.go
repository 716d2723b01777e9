package category

import (
	"context"

	"github.com/wichananm65/smart-cart-backend/internal/product"
)

// ProductLister is the part of the catalog the category detail needs.
type ProductLister interface {
	ListByCategoryID(ctx context.Context, categoryID int) ([]product.Product, error)
}

// Service provides business logic for categories.
type Service struct {
	repo     Repository
	products ProductLister
}

func NewService(r Repository, products ProductLister) *Service {
	return &Service{repo: r, products: products}
}

func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Detail returns the category and its products, newest first.
func (s *Service) Detail(ctx context.Context, id int) (Detail, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	products, err := s.products.ListByCategoryID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Category: c, Products: products}, nil
}
