package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/launchpad/internal/database"
	"github.com/rs/zerolog"
)

// CheckCoreDatabasesJob verifies integrity of the SQLite databases
type CheckCoreDatabasesJob struct {
	log       zerolog.Logger
	databases map[string]*database.DB
	timeout   time.Duration
}

// NewCheckCoreDatabasesJob creates a new CheckCoreDatabasesJob
func NewCheckCoreDatabasesJob(databases map[string]*database.DB, log zerolog.Logger) *CheckCoreDatabasesJob {
	return &CheckCoreDatabasesJob{
		log:       log.With().Str("job", "check_core_databases").Logger(),
		databases: databases,
		timeout:   time.Minute,
	}
}

// Name returns the job name
func (j *CheckCoreDatabasesJob) Name() string {
	return "check_core_databases"
}

// Run executes the check core databases job
func (j *CheckCoreDatabasesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for name, db := range j.databases {
		if db == nil {
			j.log.Warn().Str("database", name).Msg("Database not initialized, skipping")
			continue
		}

		if err := db.HealthCheck(ctx); err != nil {
			// corruption cannot be repaired automatically
			j.log.Error().
				Err(err).
				Str("database", name).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", name, err)
		}

		j.log.Debug().Str("database", name).Msg("Database integrity OK")
	}

	j.log.Info().Msg("Database integrity check passed")
	return nil
}
