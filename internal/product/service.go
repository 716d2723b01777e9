package product

import "context"

const FeaturedLimit = 8

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, limit int) ([]Product, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) GetByID(ctx context.Context, id int) (Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByCategoryID(ctx context.Context, categoryID int) ([]Product, error) {
	return s.repo.ListByCategoryID(ctx, categoryID)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// GetPrices resolves the current catalog rows for ids, keyed by product id.
// Ids that no longer exist are absent from the map.
func (s *Service) GetPrices(ctx context.Context, ids []int) (map[int]Product, error) {
	products, err := s.repo.GetByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[int]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
