package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	selectProducts = `
		SELECT p.id, p.name, p.description, p.price, p.image_url, p.category_id, c.name, p.in_stock, p.created_at, p.updated_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id`

	listProductsQuery      = selectProducts + ` ORDER BY p.created_at DESC, p.id DESC`
	listProductsLimitQuery = listProductsQuery + ` LIMIT $1`
	getProductByIDQuery    = selectProducts + ` WHERE p.id = $1`
	getProductsByIDsQuery  = selectProducts + ` WHERE p.id = ANY($1::int[]) ORDER BY p.id`
	listByCategoryQuery    = selectProducts + ` WHERE p.category_id = $1 ORDER BY p.created_at DESC, p.id DESC`
	countProductsQuery     = `SELECT COUNT(*) FROM products`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Product, error) {
	if limit > 0 {
		return r.query(ctx, listProductsLimitQuery, limit)
	}
	return r.query(ctx, listProductsQuery)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, getProductByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []int) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	return r.query(ctx, getProductsByIDsQuery, pq.Array(ids))
}

func (r *PostgresRepository) ListByCategoryID(ctx context.Context, categoryID int) ([]Product, error) {
	return r.query(ctx, listByCategoryQuery, categoryID)
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countProductsQuery).Scan(&n)
	return n, err
}

func (r *PostgresRepository) query(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(scanner rowScanner) (Product, error) {
	var (
		p            Product
		description  sql.NullString
		image        sql.NullString
		categoryID   sql.NullInt64
		categoryName sql.NullString
	)
	err := scanner.Scan(&p.ID, &p.Name, &description, &p.Price, &image, &categoryID, &categoryName, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.Description = description.String
	if image.Valid {
		p.ImageURL = &image.String
	}
	if categoryID.Valid {
		id := int(categoryID.Int64)
		p.CategoryID = &id
	}
	if categoryName.Valid {
		p.CategoryName = &categoryName.String
	}
	return p, nil
}
