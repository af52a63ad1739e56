// Package sqlite provides a SQLite-backed implementation of sagalog.Repository.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/sqlitedb"
)

// schema is executed once on startup. The table is append-only: each row is
// an immutable transition, the row with the highest id per saga_id is the
// current state.
const schema = `
CREATE TABLE IF NOT EXISTS saga_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Order id for create sagas, "cancel:<order id>" for cancel sagas.
    saga_id         TEXT        NOT NULL,
    kind            TEXT        NOT NULL,
    order_id        TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    current_step    TEXT        NOT NULL DEFAULT '',
    mode            TEXT        NOT NULL DEFAULT '',
    past_pivot      INTEGER     NOT NULL DEFAULT 0,

    -- JSON array of {productId, quantity, state}.
    items           TEXT        NOT NULL DEFAULT '[]',

    payload         TEXT,

    -- JSON array of error strings accumulated during failure/compensation.
    error_messages  TEXT        NOT NULL DEFAULT '[]',

    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_logs_saga_id ON saga_logs(saga_id, id);
CREATE INDEX IF NOT EXISTS idx_saga_logs_trace_id ON saga_logs(trace_id);
`

const columns = `saga_id, kind, order_id, status, current_step, mode, past_pivot,
		items, COALESCE(payload, ''), error_messages, trace_id, span_id, updated_at`

const insertColumns = `saga_id, kind, order_id, status, current_step, mode, past_pivot,
		items, payload, error_messages, trace_id, span_id, updated_at`

type Repository struct {
	db *sql.DB
}

// New applies the schema to db. The caller owns db and closes it.
func New(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply saga schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Save appends a row. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, rec *sagalog.Record) error {
	items, err := json.Marshal(nonNilItems(rec.Items))
	if err != nil {
		return fmt.Errorf("sqlite: encode saga items: %w", err)
	}
	errs, err := json.Marshal(nonNilStrings(rec.Errors))
	if err != nil {
		return fmt.Errorf("sqlite: encode saga errors: %w", err)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	const q = `INSERT INTO saga_logs (` + insertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		rec.SagaID,
		string(rec.Kind),
		rec.OrderID,
		string(rec.Status),
		rec.CurrentStep,
		rec.Mode,
		rec.PastPivot,
		string(items),
		nullableString(rec.Payload),
		string(errs),
		rec.TraceID,
		rec.SpanID,
		sqlitedb.FormatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for %q: %w", rec.SagaID, err)
	}
	return nil
}

func (r *Repository) GetLatest(ctx context.Context, sagaID string) (*sagalog.Record, error) {
	q := `SELECT ` + columns + ` FROM saga_logs WHERE saga_id = ? ORDER BY id DESC LIMIT 1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, sagaID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sagalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", sagaID, err)
	}
	return rec, nil
}

func (r *Repository) ListInFlight(ctx context.Context, olderThan time.Time) ([]*sagalog.Record, error) {
	q := `SELECT ` + columns + `
		FROM   saga_logs l
		WHERE  l.id = (SELECT MAX(id) FROM saga_logs WHERE saga_id = l.saga_id)
		  AND  l.status NOT IN (?, ?, ?)
		  AND  l.updated_at < ?
		ORDER  BY l.updated_at`

	rows, err := r.db.QueryContext(ctx, q,
		string(sagalog.StatusCompleted),
		string(sagalog.StatusCompensated),
		string(sagalog.StatusAborted),
		sqlitedb.FormatTime(olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list in-flight sagas: %w", err)
	}
	defer rows.Close()

	var out []*sagalog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan saga log: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*sagalog.Record, error) {
	var (
		rec       sagalog.Record
		items     string
		errs      string
		updatedAt string
	)
	err := s.Scan(
		&rec.SagaID,
		&rec.Kind,
		&rec.OrderID,
		&rec.Status,
		&rec.CurrentStep,
		&rec.Mode,
		&rec.PastPivot,
		&items,
		&rec.Payload,
		&errs,
		&rec.TraceID,
		&rec.SpanID,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	if rec.UpdatedAt, err = sqlitedb.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// nullableString stores NULL instead of an empty TEXT.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilItems(items []sagalog.ItemState) []sagalog.ItemState {
	if items == nil {
		return []sagalog.ItemState{}
	}
	return items
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
