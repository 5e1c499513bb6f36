// Package sqlite is the default durable storage.Store: a single kv table in a
// local SQLite file, schema managed by goose.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/dbx"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/migrations"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.SQLite)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "sqlite")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	return get(ctx, s.db, key)
}

func get(ctx context.Context, db dbx.DBTX, key storage.Key) ([]byte, bool, error) {
	value, ok, err := dbx.QueryBytes(ctx, db, `SELECT value FROM kv WHERE key = ?`, string(key))
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return value, ok, nil
}

func (s *Store) Set(ctx context.Context, key storage.Key, value []byte) error {
	return set(ctx, s.db, key, value)
}

func set(ctx context.Context, db dbx.DBTX, key storage.Key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			updated_at = CAST(strftime('%s', 'now') AS INTEGER)
	`, string(key), value)
	if err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key storage.Key) error {
	return remove(ctx, s.db, key)
}

func remove(ctx context.Context, db dbx.DBTX, key storage.Key) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, string(key)); err != nil {
		return wrap("remove", key, err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key storage.Key, old, next []byte) (bool, error) {
	return dbx.Swap(ctx, s.db, old,
		func(ctx context.Context, tx dbx.DBTX) ([]byte, bool, error) { return get(ctx, tx, key) },
		func(ctx context.Context, tx dbx.DBTX) error {
			if next == nil {
				return remove(ctx, tx, key)
			}
			return set(ctx, tx, key, next)
		})
}

// wrap tags a driver error with the storage category; a full database is
// reported as common.ErrQuotaExceeded.
func wrap(op string, key storage.Key, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_FULL {
		return fmt.Errorf("failed to %s kv[%s]: %w: %v", op, key, common.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("failed to %s kv[%s]: %w: %v", op, key, common.ErrStorage, err)
}
