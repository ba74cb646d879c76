package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestUoW(t *testing.T) *SQLUnitOfWork {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "uow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = database.Exec(`CREATE TABLE uow_test (id TEXT PRIMARY KEY, val TEXT)`)
	require.NoError(t, err)

	return NewUnitOfWork(database)
}

func countRows(t *testing.T, uow *SQLUnitOfWork) int {
	t.Helper()

	var n int
	require.NoError(t, uow.db.QueryRow(`SELECT COUNT(*) FROM uow_test`).Scan(&n))
	return n
}

func TestOpen_EnablesForeignKeys(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "fk.db"))
	require.NoError(t, err)
	defer database.Close()

	var enabled int
	require.NoError(t, database.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestWithinTx_CommitOnSuccess(t *testing.T) {
	uow := openTestUoW(t)

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO uow_test (id, val) VALUES (?, ?)`, "k1", "v1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, uow))
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	uow := openTestUoW(t)
	boom := errors.New("deliberate failure")

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO uow_test (id, val) VALUES (?, ?)`, "k2", "v2"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRows(t, uow))
}

func TestWithinTx_RollbackOnPanic(t *testing.T) {
	uow := openTestUoW(t)

	assert.Panics(t, func() {
		_ = uow.WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO uow_test (id, val) VALUES (?, ?)`, "k3", "v3")
			panic("boom")
		})
	})
	assert.Equal(t, 0, countRows(t, uow))
}
