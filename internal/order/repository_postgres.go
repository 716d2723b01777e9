package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/wichananm65/smart-cart-backend/internal/address"
)

const uniqueViolation = "23505"

const orderColumns = `"orderID", "userID", payment_reference, status, subtotal, surcharge, total,
	shipping_address, payment_method, payment_status, tracking_number, "createdAt", "updatedAt"`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		ord      Order
		shipping sql.NullString
		tracking sql.NullString
	)
	err := row.Scan(&ord.OrderID, &ord.UserID, &ord.PaymentReference, &ord.Status, &ord.Subtotal, &ord.Surcharge, &ord.Total,
		&shipping, &ord.PaymentMethod, &ord.PaymentStatus, &tracking, &ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if shipping.Valid && shipping.String != "" {
		a, err := address.Decode(shipping.String)
		if err != nil {
			slog.Warn("stored shipping address is invalid", "order_id", ord.OrderID, "error", err)
			ord.AddressInvalid = true
		} else {
			ord.ShippingAddress = &a
		}
	}
	if tracking.Valid {
		tn := tracking.String
		ord.TrackingNumber = &tn
	}
	return ord, nil
}

func (r *PostgresRepository) FindByReference(ctx context.Context, reference string) (Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference)
	ord, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return ord, err
}

// InsertIfAbsent relies on the unique index over payment_reference. A
// conflicting insert returns no row, in which case the winner is re-read.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, ord Order) (Order, bool, error) {
	var shipping sql.NullString
	if ord.ShippingAddress != nil {
		raw, err := address.Encode(*ord.ShippingAddress)
		if err != nil {
			return Order{}, false, err
		}
		shipping = sql.NullString{String: raw, Valid: true}
	}
	var tracking sql.NullString
	if ord.TrackingNumber != nil {
		tracking = sql.NullString{String: *ord.TrackingNumber, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `INSERT INTO orders ("userID", payment_reference, status, subtotal, surcharge, total,
		shipping_address, payment_method, payment_status, tracking_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (payment_reference) DO NOTHING
		RETURNING `+orderColumns,
		ord.UserID, ord.PaymentReference, ord.Status, ord.Subtotal, ord.Surcharge, ord.Total,
		shipping, ord.PaymentMethod, ord.PaymentStatus, tracking)
	created, err := scanOrder(row)
	switch {
	case err == nil:
		return created, true, nil
	case errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err):
		existing, ferr := r.FindByReference(ctx, ord.PaymentReference)
		if ferr != nil {
			return Order{}, false, fmt.Errorf("re-read order %s: %w", ord.PaymentReference, ferr)
		}
		return existing, false, nil
	default:
		return Order{}, false, err
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PostgresRepository) InsertItems(ctx context.Context, orderID int, items []Item) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	productIDs := make([]int64, 0, len(items))
	quantities := make([]int64, 0, len(items))
	prices := make([]int64, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, int64(it.ProductID))
		quantities = append(quantities, int64(it.Quantity))
		prices = append(prices, it.UnitPrice)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO order_items ("orderID", "productID", quantity, price)
		SELECT $1, p, q, u FROM unnest($2::bigint[], $3::bigint[], $4::bigint[]) AS t(p, q, u)`,
		orderID, pq.Array(productIDs), pq.Array(quantities), pq.Array(prices))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(items)) {
		return fmt.Errorf("order %d: inserted %d of %d items", orderID, n, len(items))
	}
	return tx.Commit()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, orderID int, status string, trackingNumber *string) (Order, error) {
	var tracking sql.NullString
	if trackingNumber != nil {
		tracking = sql.NullString{String: *trackingNumber, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, `UPDATE orders SET status = $2,
		tracking_number = COALESCE($3, tracking_number), "updatedAt" = now()
		WHERE "orderID" = $1
		RETURNING `+orderColumns, orderID, status, tracking)
	ord, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return ord, err
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID int) (Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE "orderID" = $1`, orderID)
	ord, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT "orderItemID", "orderID", "productID", quantity, price, "createdAt"
		FROM order_items WHERE "orderID" = $1 ORDER BY "orderItemID"`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()

	ord.Items = make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ItemID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
			return Order{}, err
		}
		ord.Items = append(ord.Items, it)
	}
	return ord, rows.Err()
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE "userID" = $1 ORDER BY "createdAt" DESC, "orderID" DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listFilterClause = ` WHERE ($1::text = '' OR status = $1) AND ($2::int = 0 OR "orderID" = $2)`

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Order, int, error) {
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+listFilterClause,
		filter.Status, filter.OrderID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`+listFilterClause+`
		ORDER BY "createdAt" DESC, "orderID" DESC LIMIT $3 OFFSET $4`, filter.Status, filter.OrderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders, err := collectOrders(rows)
	return orders, total, err
}

func (r *PostgresRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectOrders(rows *sql.Rows) ([]Order, error) {
	orders := make([]Order, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, ord)
	}
	return orders, rows.Err()
}
