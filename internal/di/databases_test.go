package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/launchpad/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDatabases(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{DataDir: tmpDir}

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Close()

	assert.NotNil(t, container.LedgerDB)
	assert.FileExists(t, filepath.Join(tmpDir, "ledger.db"))

	// Schema applied: every read model table exists
	for _, table := range []string{"events", "trades", "tax_collections", "token_profiles"} {
		var name string
		err := container.LedgerDB.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	// A regular file where the data directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg := &config.Config{DataDir: filepath.Join(blocker, "data")}

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}
