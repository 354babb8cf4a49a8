// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/database"
	"github.com/aristath/launchpad/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers the maintenance jobs.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}
	databases := map[string]*database.DB{"ledger": container.LedgerDB}

	// ==========================================
	// Reserve reconciliation
	// ==========================================
	instances.ReconcileReserves = scheduler.NewReconcileReservesJob(
		container.Host,
		container.Router,
		container.EventManager,
		cfg.Accounts.Admin,
		cfg.ReconcileAutoSync,
		log,
	)
	if err := container.Scheduler.AddJob(cfg.ReconcileSchedule, instances.ReconcileReserves); err != nil {
		return nil, err
	}

	// ==========================================
	// Database health
	// ==========================================
	instances.CheckCoreDatabases = scheduler.NewCheckCoreDatabasesJob(databases, log)
	if err := container.Scheduler.AddJob(cfg.WALCheckpointSchedule, instances.CheckCoreDatabases); err != nil {
		return nil, err
	}

	instances.CheckWALCheckpoint = scheduler.NewCheckWALCheckpointsJob(databases, log)
	if err := container.Scheduler.AddJob(cfg.WALCheckpointSchedule, instances.CheckWALCheckpoint); err != nil {
		return nil, err
	}

	log.Info().Int("jobs", len(container.Scheduler.Status())).Msg("Jobs registered")

	return instances, nil
}
