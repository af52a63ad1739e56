// Package postgres stores products in PostgreSQL through a pgx pool. Stock
// writes are guarded by the row version so several warehouse instances can
// share one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ports"
	"github.com/shopspring/decimal"
)

var _ ports.ProductStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id              TEXT PRIMARY KEY,
    name            TEXT           NOT NULL,
    description     TEXT           NOT NULL DEFAULT '',
    price           NUMERIC(12, 2) NOT NULL,
    stock_quantity  INTEGER        NOT NULL CHECK (stock_quantity >= 0),
    version         BIGINT         NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ    NOT NULL,
    updated_at      TIMESTAMPTZ    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products (lower(name));
`

const columns = `id, name, description, price::text, stock_quantity, version, created_at, updated_at`

type Store struct {
	db *pgxpool.Pool
}

// Connect opens a traced pool and applies the schema.
func Connect(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Product, error) {
	row := s.db.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("postgres: get product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.NameContains != "" {
		args = append(args, "%"+escapeLike(filter.NameContains)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if filter.MinQuantity != nil {
		args = append(args, *filter.MinQuantity)
		where = append(where, fmt.Sprintf("stock_quantity >= $%d", len(args)))
	}
	if filter.MaxQuantity != nil {
		args = append(args, *filter.MaxQuantity)
		where = append(where, fmt.Sprintf("stock_quantity <= $%d", len(args)))
	}

	q := `SELECT ` + columns + ` FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY name, id`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count products: %w", err)
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, p domain.Product) error {
	const q = `INSERT INTO products (id, name, description, price, stock_quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, q, p.ID, p.Name, p.Description, p.Price.String(), p.StockQuantity, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) UpdateDetails(ctx context.Context, id string, d domain.ProductDetails) (domain.Product, error) {
	q := `UPDATE products
		SET name = $2, description = $3, price = $4::numeric, version = version + 1, updated_at = $5
		WHERE id = $1
		RETURNING ` + columns
	p, err := scanProduct(s.db.QueryRow(ctx, q, id, d.Name, d.Description, d.Price.String(), time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("postgres: update product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) SetQuantity(ctx context.Context, id string, expectedVersion int64, qty int) (domain.Product, error) {
	q := `UPDATE products
		SET stock_quantity = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2
		RETURNING ` + columns
	p, err := scanProduct(s.db.QueryRow(ctx, q, id, expectedVersion, qty, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the row is gone or someone else wrote it first.
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, domain.ErrProductNotFound) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, domain.ErrVersionConflict
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("postgres: set quantity of %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.StockQuantity, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	return p, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
