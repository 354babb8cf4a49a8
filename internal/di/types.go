/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all engine components and
 * service instances and is passed to the server for access to services.
 */
package di

import (
	"github.com/aristath/launchpad/internal/database"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/metrics"
	"github.com/aristath/launchpad/internal/modules/airdrop"
	"github.com/aristath/launchpad/internal/modules/graduation"
	"github.com/aristath/launchpad/internal/modules/launch"
	"github.com/aristath/launchpad/internal/modules/token"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/aristath/launchpad/internal/modules/venues"
	"github.com/aristath/launchpad/internal/scheduler"
	"github.com/aristath/launchpad/internal/state"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: one ledger database holding the event log, trades and profiles
 * - Engine: the in-memory state host, token ledgers, router, venues, coordinator,
 *   distributor and orchestrator, all recording into one journal
 * - Repositories: read models projected from engine events
 * - Services: host-serialized entry points used by HTTP handlers and the CLI
 */
type Container struct {
	// Databases
	LedgerDB *database.DB // Event log, trade history, tax collections, token profiles

	// Events and observability
	EventBus     *events.Bus
	EventManager *events.Manager
	EventStore   *events.Store
	Metrics      *metrics.Metrics

	// Engine
	Host          *state.Host
	Tokens        *token.Registry
	BaseToken     *token.Token
	Router        *trading.Router
	VenueRegistry *venues.Registry
	Coordinator   *graduation.Coordinator
	Distributor   *airdrop.Distributor
	Orchestrator  *launch.Orchestrator

	// Repositories - read models fed by the event bus
	TradeRepo   *trading.TradeRepository
	ProfileRepo *graduation.ProfileRepository

	// Services - Business logic layer
	TradeSafetyService *trading.TradeSafetyService
	TradingService     *trading.TradingService
	GraduationService  *graduation.GraduationService
	AirdropService     *airdrop.AirdropService
	LaunchService      *launch.LaunchService

	// Scheduler runs maintenance jobs; not started by Wire
	Scheduler *scheduler.Scheduler

	// detach unsubscribes every bus listener registered during wiring
	detach []func()
}

// JobInstances holds the registered maintenance jobs for manual triggering
type JobInstances struct {
	ReconcileReserves  scheduler.Job
	CheckCoreDatabases scheduler.Job
	CheckWALCheckpoint scheduler.Job
}

// Close detaches bus listeners and closes the databases
func (c *Container) Close() error {
	for i := len(c.detach) - 1; i >= 0; i-- {
		c.detach[i]()
	}
	c.detach = nil
	if c.LedgerDB != nil {
		return c.LedgerDB.Close()
	}
	return nil
}
