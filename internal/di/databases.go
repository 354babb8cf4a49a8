// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the ledger database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// ledger.db - append-only event log and the read models projected from it
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerPath(),
		Profile: database.ProfileLedger, // Maximum safety for the audit trail
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	if err := ledgerDB.Migrate(); err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", ledgerDB.Name(), err)
	}

	log.Info().Str("path", ledgerDB.Path()).Msg("Ledger database initialized and schema applied")

	return container, nil
}
