package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/storage"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Store = (*Store)(nil)
var _ storage.Swapper = (*Store)(nil)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock, db
}

const (
	selectQ = `(?s)^SELECT value FROM kv WHERE key = \$1$`
	lockQ   = `(?s)^SELECT value FROM kv WHERE key = \$1 FOR UPDATE$`
	upsertQ = `(?s)INSERT INTO kv \(key, value\) VALUES \(\$1, \$2\).*ON CONFLICT \(key\) DO UPDATE`
	deleteQ = `(?s)^DELETE FROM kv WHERE key = \$1$`
)

func TestGet_Found(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectQuery(selectQ).
		WithArgs("crm_password_hash").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("abc")))

	v, ok, err := s.Get(context.Background(), storage.KeyPasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectQuery(selectQ).WithArgs("k").WillReturnError(sql.ErrNoRows)

	v, ok, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestGet_DBError(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectQuery(selectQ).WithArgs("k").WillReturnError(errors.New("db down"))

	_, _, err := s.Get(context.Background(), "k")
	require.ErrorIs(t, err, common.ErrStorage)
	require.Contains(t, err.Error(), "db down")
}

func TestSet_Upsert(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectExec(upsertQ).
		WithArgs("gf_crm_deals_enc_v1", []byte("blob")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Set(context.Background(), storage.Deals.Encrypted, []byte("blob")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSet_DiskFullIsQuotaExceeded(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectExec(upsertQ).
		WithArgs("k", []byte("v")).
		WillReturnError(&pgconn.PgError{Code: "53100", Message: "could not extend file"})

	err := s.Set(context.Background(), "k", []byte("v"))
	require.ErrorIs(t, err, common.ErrQuotaExceeded)
	require.ErrorIs(t, err, common.ErrStorage)
}

func TestRemove(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectExec(deleteQ).WithArgs("crm_lock_until").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Remove(context.Background(), storage.KeyLockUntil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwap_Swaps(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs("r").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("1")))
	mock.ExpectExec(upsertQ).WithArgs("r", []byte("2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := s.CompareAndSwap(context.Background(), "r", []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwap_NilNextRemoves(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs("r").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("1")))
	mock.ExpectExec(deleteQ).WithArgs("r").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := s.CompareAndSwap(context.Background(), "r", []byte("1"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwap_Mismatch(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs("r").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("5")))
	mock.ExpectCommit()

	ok, err := s.CompareAndSwap(context.Background(), "r", []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwap_RollbackOnError(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WithArgs("r").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(upsertQ).WithArgs("r", []byte("1")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	ok, err := s.CompareAndSwap(context.Background(), "r", nil, []byte("1"))
	require.ErrorIs(t, err, common.ErrStorage)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
