// Package postgres is a storage.Store over PostgreSQL (pgx stdlib driver),
// for installations that keep the durable store in a database server.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/dbx"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/dmitrijs2005/crmkeeper/internal/storage/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// disk_full, insufficient_resources class
const pgDiskFull = "53100"

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Postgres)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "postgres")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	return get(ctx, s.db, key, false)
}

func get(ctx context.Context, db dbx.DBTX, key storage.Key, forUpdate bool) ([]byte, bool, error) {
	query := `SELECT value FROM kv WHERE key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	value, ok, err := dbx.QueryBytes(ctx, db, query, string(key))
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
	query := `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := db.ExecContext(ctx, query, string(key), value); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key storage.Key) error {
	return remove(ctx, s.db, key)
}

func remove(ctx context.Context, db dbx.DBTX, key storage.Key) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, string(key)); err != nil {
		return wrap("remove", key, err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key storage.Key, old, next []byte) (bool, error) {
	return dbx.Swap(ctx, s.db, old,
		func(ctx context.Context, tx dbx.DBTX) ([]byte, bool, error) { return get(ctx, tx, key, true) },
		func(ctx context.Context, tx dbx.DBTX) error {
			if next == nil {
				return remove(ctx, tx, key)
			}
			return set(ctx, tx, key, next)
		})
}

func wrap(op string, key storage.Key, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDiskFull {
		return fmt.Errorf("failed to %s kv[%s]: %w: %v", op, key, common.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("failed to %s kv[%s]: %w: %v", op, key, common.ErrStorage, err)
}
