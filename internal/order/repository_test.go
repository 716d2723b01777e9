package order

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/wichananm65/smart-cart-backend/internal/address"
)

func TestInMemoryInsertIfAbsent_ConcurrentSingleWinner(t *testing.T) {
	repo := NewInMemoryRepository()
	const callers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[int]struct{}{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ord, ok, err := repo.InsertIfAbsent(context.Background(), Order{UserID: 1, PaymentReference: "cs_race", Status: StatusReceived})
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[ord.OrderID] = struct{}{}
		}()
	}
	wg.Wait()

	if created != 1 || len(ids) != 1 || repo.Count() != 1 {
		t.Fatalf("expected one winner and one id, got created=%d ids=%d rows=%d", created, len(ids), repo.Count())
	}
}

func TestInMemoryInsertItems_Empty(t *testing.T) {
	repo := NewInMemoryRepository()
	ord, _, _ := repo.InsertIfAbsent(context.Background(), Order{UserID: 1, PaymentReference: "cs_1"})
	if err := repo.InsertItems(context.Background(), ord.OrderID, nil); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
}

var orderRowColumns = []string{"orderID", "userID", "payment_reference", "status", "subtotal", "surcharge", "total",
	"shipping_address", "payment_method", "payment_status", "tracking_number", "createdAt", "updatedAt"}

func orderRow(id int, ref string, shipping driver.Value) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderRowColumns).
		AddRow(id, 42, ref, StatusReceived, 5000, 1000, 6000, shipping, "stripe", "paid", nil, now, now)
}

func TestPostgresInsertIfAbsent_Created(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	addr := address.ShippingAddress{FullName: "Jenny Test", AddressLine1: "1 Market St", City: "San Francisco", PostalCode: "94105", Country: "US"}
	raw, err := address.Encode(addr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	mock.ExpectQuery("ON CONFLICT \\(payment_reference\\) DO NOTHING").
		WithArgs(42, "cs_new", StatusReceived, int64(5000), int64(1000), int64(6000), raw, "stripe", "paid", nil).
		WillReturnRows(orderRow(10, "cs_new", raw))

	ord, created, err := repo.InsertIfAbsent(context.Background(), Order{
		UserID: 42, PaymentReference: "cs_new", Status: StatusReceived,
		Subtotal: 5000, Surcharge: 1000, Total: 6000, ShippingAddress: &addr,
		PaymentMethod: "stripe", PaymentStatus: "paid",
	})
	if err != nil || !created {
		t.Fatalf("expected created order, got created=%v err=%v", created, err)
	}
	if ord.OrderID != 10 || ord.ShippingAddress == nil || ord.ShippingAddress.City != "San Francisco" {
		t.Fatalf("unexpected order %+v", ord)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertIfAbsent_ConflictRereads(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	// DO NOTHING returns no row for the losing insert
	mock.ExpectQuery("INSERT INTO orders").WillReturnRows(sqlmock.NewRows(orderRowColumns))
	mock.ExpectQuery("WHERE payment_reference = \\$1").WithArgs("cs_dup").WillReturnRows(orderRow(3, "cs_dup", nil))

	ord, created, err := repo.InsertIfAbsent(context.Background(), Order{UserID: 42, PaymentReference: "cs_dup", Status: StatusReceived})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || ord.OrderID != 3 {
		t.Fatalf("expected existing order 3, got created=%v id=%d", created, ord.OrderID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertIfAbsent_UniqueViolationRereads(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("INSERT INTO orders").WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_payment_reference_key"})
	mock.ExpectQuery("WHERE payment_reference = \\$1").WithArgs("cs_dup").WillReturnRows(orderRow(4, "cs_dup", nil))

	ord, created, err := repo.InsertIfAbsent(context.Background(), Order{UserID: 42, PaymentReference: "cs_dup"})
	if err != nil || created || ord.OrderID != 4 {
		t.Fatalf("expected existing order 4, got id=%d created=%v err=%v", ord.OrderID, created, err)
	}
}

func TestPostgresInsertItems_Transactional(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(10, pq.Array([]int64{1, 2}), pq.Array([]int64{2, 1}), pq.Array([]int64{2500, 999})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err = repo.InsertItems(context.Background(), 10, []Item{
		{ProductID: 1, Quantity: 2, UnitPrice: 2500},
		{ProductID: 2, Quantity: 1, UnitPrice: 999},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertItems_FailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	if err := repo.InsertItems(context.Background(), 10, []Item{{ProductID: 9, Quantity: 1, UnitPrice: 100}}); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresFindByReference_InvalidStoredAddressStillResolves(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	broken := `{"fullName":"Jenny Test","addressLine1":"1 Market St","city":"","postalCode":"94105","country":"US"}`
	mock.ExpectQuery("WHERE payment_reference = \\$1").WithArgs("pi_123").WillReturnRows(orderRow(7, "pi_123", broken))

	ord, err := repo.FindByReference(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("expected the existing order, got %v", err)
	}
	if ord.OrderID != 7 || ord.ShippingAddress != nil || !ord.AddressInvalid {
		t.Fatalf("expected order 7 flagged with an invalid address, got %+v", ord)
	}
}

func TestPostgresListByUser_InvalidStoredAddressKeepsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(orderRowColumns).
		AddRow(2, 42, "cs_2", StatusReceived, 5000, 1000, 6000, `{"legacy":true}`, "stripe", "paid", nil, now, now).
		AddRow(1, 42, "cs_1", StatusReceived, 5000, 1000, 6000, nil, "stripe", "paid", nil, now, now)
	mock.ExpectQuery(`WHERE "userID" = \$1`).WithArgs(42).WillReturnRows(rows)

	orders, err := repo.ListByUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 || !orders[0].AddressInvalid || orders[1].AddressInvalid {
		t.Fatalf("unexpected orders %+v", orders)
	}
}

func TestPostgresList_Filter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE`).
		WithArgs(StatusItemsMissing, 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`LIMIT \$3 OFFSET \$4`).
		WithArgs(StatusItemsMissing, 0, 20, 0).
		WillReturnRows(orderRow(5, "cs_defect", nil))

	orders, total, err := repo.List(context.Background(), ListFilter{Status: StatusItemsMissing}, 20, -40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].OrderID != 5 {
		t.Fatalf("unexpected result total=%d orders=%+v", total, orders)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresCountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("GROUP BY status").WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
		AddRow(StatusReceived, 3).AddRow(StatusProcessing, 1))

	counts, err := NewPostgresRepository(db).CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[StatusReceived] != 3 || counts[StatusProcessing] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestInMemoryList_FilterAndOffsets(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for _, ref := range []string{"cs_a", "cs_b", "cs_c"} {
		if _, _, err := repo.InsertIfAbsent(ctx, Order{UserID: 1, PaymentReference: ref, Status: StatusReceived}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := repo.UpdateStatus(ctx, 2, StatusProcessingFailed, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	orders, total, err := repo.List(ctx, ListFilter{Status: StatusProcessingFailed}, 10, 0)
	if err != nil || total != 1 || len(orders) != 1 || orders[0].OrderID != 2 {
		t.Fatalf("status filter: total=%d orders=%+v err=%v", total, orders, err)
	}

	orders, total, _ = repo.List(ctx, ListFilter{OrderID: 3}, 10, 0)
	if total != 1 || orders[0].PaymentReference != "cs_c" {
		t.Fatalf("id filter: total=%d orders=%+v", total, orders)
	}

	orders, total, err = repo.List(ctx, ListFilter{}, 100, -100)
	if err != nil || total != 3 || len(orders) != 3 {
		t.Fatalf("negative offset: total=%d orders=%d err=%v", total, len(orders), err)
	}

	counts, _ := repo.CountByStatus(ctx)
	if counts[StatusReceived] != 2 || counts[StatusProcessingFailed] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
