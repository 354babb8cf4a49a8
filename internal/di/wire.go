// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/domain"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// This is the main entry point for dependency injection.
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories and bus listeners
// 3. Initialize the engine and services
// 4. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	return WireWithClock(cfg, nil, log)
}

// WireWithClock is Wire with an explicit engine clock; nil means wall-clock time
func WireWithClock(cfg *config.Config, clock domain.Clock, log zerolog.Logger) (*Container, *JobInstances, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize repositories
	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Step 3: Initialize services
	if err := InitializeServices(container, cfg, clock, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 4: Register jobs
	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}
