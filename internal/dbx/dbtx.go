// Package dbx holds the database/sql plumbing shared by the SQL storage
// backends.
package dbx

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// Errors and panics roll back; a panic is rethrown.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// QueryBytes scans a single blob column. A missing row is reported as
// ok == false with a nil error.
func QueryBytes(ctx context.Context, db DBTX, query string, args ...any) (value []byte, ok bool, err error) {
	err = db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Swap reads the current value and calls write only when it equals old,
// all in one transaction. A nil old means the value must be absent.
//
//	swapped, err := dbx.Swap(ctx, db, old,
//	    func(ctx context.Context, tx dbx.DBTX) ([]byte, bool, error) { return get(ctx, tx, key) },
//	    func(ctx context.Context, tx dbx.DBTX) error { return set(ctx, tx, key, next) })
func Swap(ctx context.Context, db *sql.DB, old []byte,
	read func(ctx context.Context, tx DBTX) ([]byte, bool, error),
	write func(ctx context.Context, tx DBTX) error,
) (bool, error) {
	swapped := false
	err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		cur, ok, err := read(ctx, tx)
		if err != nil {
			return err
		}
		if old == nil && ok {
			return nil
		}
		if old != nil && (!ok || !bytes.Equal(cur, old)) {
			return nil
		}
		if err := write(ctx, tx); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}
