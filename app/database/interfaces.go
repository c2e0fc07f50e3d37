package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrDuplicate is returned by inserts that hit an existing (source_id, url) row.
var ErrDuplicate = errors.New("duplicate row")

// Store is the relational surface the repositories need. *sql.DB and *sql.Tx
// both satisfy it.
type Store interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert runs an INSERT and returns the new row id. An insert that changes no
// rows (ON CONFLICT DO NOTHING) yields ErrDuplicate.
func Insert(ctx context.Context, s Store, query string, args ...any) (int64, error) {
	res, err := s.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return 0, ErrDuplicate
	}

	return res.LastInsertId()
}
