package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "nested", "ledger.db"), Profile: ProfileScratch, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestNew_DefaultsToLedgerProfile(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Name: "x"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileLedger, db.Profile())
	assert.True(t, filepath.IsAbs(db.Path()))
	assert.NoError(t, db.Migrate(), "unknown names have no schema")
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := openLedger(t)
	require.NoError(t, db.Migrate())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('events', 'trades', 'tax_collections', 'token_profiles')`).Scan(&n))
	assert.Equal(t, 4, n)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	db := openLedger(t)
	_, err := db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO kv (k) VALUES ('a')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec(`INSERT INTO kv (k) VALUES ('b')`)
		panic("half-written")
	})
	assert.ErrorContains(t, err, "panic in transaction")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Zero(t, n)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}

func TestHealthAndMaintenance(t *testing.T) {
	db := openLedger(t)
	ctx := context.Background()

	assert.NoError(t, db.QuickCheck(ctx))
	assert.NoError(t, db.HealthCheck(ctx))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))
	assert.Error(t, db.WALCheckpoint("TRUNCATE); DROP TABLE trades; --"))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Positive(t, stats.PageCount)
	assert.Positive(t, stats.PageSize)
	assert.Positive(t, stats.SizeBytes)
}
