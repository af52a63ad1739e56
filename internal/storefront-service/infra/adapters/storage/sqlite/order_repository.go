// Package sqlite stores orders in the storefront's SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/sqlitedb"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/shopspring/decimal"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Money is stored as decimal text so no precision is lost.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id               TEXT PRIMARY KEY,
    customer_name    TEXT NOT NULL,
    customer_email   TEXT NOT NULL,
    total_amount     TEXT NOT NULL,
    status           TEXT NOT NULL,
    idempotency_key  TEXT UNIQUE,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_customer_email ON orders(customer_email);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS order_items (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id      TEXT    NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    position      INTEGER NOT NULL,
    product_id    TEXT    NOT NULL,
    product_name  TEXT    NOT NULL,
    unit_price    TEXT    NOT NULL,
    quantity      INTEGER NOT NULL,
    line_total    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id, position);
`

const orderColumns = `id, customer_name, customer_email, total_amount, status,
		COALESCE(idempotency_key, ''), created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

var _ ports.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository applies the schema to db. The caller owns db.
func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply order schema: %w", err)
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_email, total_amount, status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerName, o.CustomerEmail, o.TotalAmount.String(), string(o.Status),
		nullableString(o.IdempotencyKey), sqlitedb.FormatTime(o.CreatedAt), sqlitedb.FormatTime(o.UpdatedAt),
	)
	if isUniqueViolation(err) && o.IdempotencyKey != "" {
		return fmt.Errorf("sqlite: insert order %s: %w", o.ID, domain.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert order %s: %w", o.ID, err)
	}

	for i, it := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, product_name, unit_price, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ID, i, it.ProductID, it.ProductName, it.UnitPrice.String(), it.Quantity, it.LineTotal.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert item of order %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(o.Status), sqlitedb.FormatTime(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update order %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = ?`, key)
}

func (r *OrderRepository) List(ctx context.Context, q ports.OrderQuery) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if q.CustomerEmail != "" {
		where = append(where, "customer_email = ?")
		args = append(args, q.CustomerEmail)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, sqlitedb.FormatTime(*q.From))
	}
	if q.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, sqlitedb.FormatTime(*q.To))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Items are loaded after the order rows are closed: the pool has a
	// single connection.
	for _, o := range orders {
		if o.Items, err = r.items(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context, status domain.OrderStatus) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count orders: %w", err)
	}
	return n, nil
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price, quantity, line_total
		FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load items of %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			it                   domain.OrderItem
			unitPrice, lineTotal string
		)
		if err := rows.Scan(&it.ProductID, &it.ProductName, &unitPrice, &it.Quantity, &lineTotal); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("sqlite: unit price of %s: %w", orderID, err)
		}
		if it.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return nil, fmt.Errorf("sqlite: line total of %s: %w", orderID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o                    domain.Order
		total, status        string
		createdAt, updatedAt string
		err                  error
	)
	if err := s.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &total, &status, &o.IdempotencyKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("sqlite: total of %s: %w", o.ID, err)
	}
	if o.CreatedAt, err = sqlitedb.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = sqlitedb.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var se *sqlitedriver.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
