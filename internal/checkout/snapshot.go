package checkout

import (
	"context"
	"fmt"

	"github.com/wichananm65/smart-cart-backend/internal/cart"
	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
	"github.com/wichananm65/smart-cart-backend/internal/product"
)

// CartReader reads the mutable cart owned by the cart package.
type CartReader interface {
	ReadCart(ctx context.Context, userID int) ([]cart.Line, error)
}

// Catalog resolves current catalog rows by id.
type Catalog interface {
	GetPrices(ctx context.Context, ids []int) (map[int]product.Product, error)
}

// Snapshot is the priced cart at checkout time. It is only used to open the
// payment session; finalization relies on the provider's copy.
type Snapshot struct {
	Lines  []payment.LineItem
	Totals money.Totals
}

type SnapshotReader struct {
	carts   CartReader
	catalog Catalog
	calc    *money.Calculator
}

func NewSnapshotReader(carts CartReader, catalog Catalog, calc *money.Calculator) *SnapshotReader {
	return &SnapshotReader{carts: carts, catalog: catalog, calc: calc}
}

func (r *SnapshotReader) Read(ctx context.Context, userID int) (Snapshot, error) {
	lines, err := r.carts.ReadCart(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return Snapshot{}, ErrEmptyCart
	}

	ids := make([]int, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := r.catalog.GetPrices(ctx, ids)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve prices: %w", err)
	}

	snap := Snapshot{Lines: make([]payment.LineItem, 0, len(lines))}
	priced := make([]money.Line, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.InStock {
			return Snapshot{}, fmt.Errorf("%w: product %d", ErrProductUnavailable, l.ProductID)
		}
		item := payment.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			ImageURL:  p.Image(),
			Quantity:  l.Quantity,
			UnitPrice: p.PriceCents(),
		}
		snap.Lines = append(snap.Lines, item)
		priced = append(priced, money.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}

	snap.Totals, err = r.calc.ComputeTotals(priced)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
