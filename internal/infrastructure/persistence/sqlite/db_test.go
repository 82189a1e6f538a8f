package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openNotes(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "tx.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE notes (body TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countNotes(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	return n
}

func insertNote(ctx context.Context, db *sql.DB, body string) error {
	_, err := Conn(ctx, db).ExecContext(ctx, `INSERT INTO notes (body) VALUES (?)`, body)
	return err
}

func TestConn_OutsideTransaction(t *testing.T) {
	db := openNotes(t)
	assert.Same(t, db, Conn(context.Background(), db))
}

func TestWithTransaction_Commit(t *testing.T) {
	db := openNotes(t)
	tm := NewTransactor(db, zap.NewNop())

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		_, isTx := Conn(ctx, db).(*sql.Tx)
		assert.True(t, isTx, "statements run on the transaction")

		if err := insertNote(ctx, db, "first"); err != nil {
			return err
		}
		// Nested units of work join the outer transaction
		return tm.WithTransaction(ctx, func(inner context.Context) error {
			assert.Same(t, Conn(ctx, db), Conn(inner, db))
			return insertNote(inner, db, "second")
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countNotes(t, db))
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := openNotes(t)
	tm := NewTransactor(db, zap.NewNop())
	boom := errors.New("boom")

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, insertNote(ctx, db, "discarded"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countNotes(t, db))
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	db := openNotes(t)
	tm := NewTransactor(db, zap.NewNop())

	assert.PanicsWithValue(t, "boom", func() {
		_ = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
			require.NoError(t, insertNote(ctx, db, "discarded"))
			panic("boom")
		})
	})
	assert.Equal(t, 0, countNotes(t, db))
}

func TestWithTransaction_CancelledContext(t *testing.T) {
	db := openNotes(t)
	tm := NewTransactor(db, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tm.WithTransaction(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
