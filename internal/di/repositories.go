// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/metrics"
	"github.com/aristath/launchpad/internal/modules/graduation"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the event bus, the event log and every read
// model, and subscribes them to the bus. Listeners attach before any engine
// component exists so no committed event is missed.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Event store (append-only log of every event)
	container.EventStore = events.NewStore(container.LedgerDB, log)
	container.EventStore.Attach(container.EventBus)
	container.detach = append(container.detach, container.EventStore.Detach)

	// Trade repository (trades and tax collections)
	container.TradeRepo = trading.NewTradeRepository(container.LedgerDB.Conn(), log)
	container.detach = append(container.detach, container.TradeRepo.Attach(container.EventBus))

	// Profile repository (token profiles and graduation outcomes)
	container.ProfileRepo = graduation.NewProfileRepository(container.LedgerDB.Conn(), log)
	container.detach = append(container.detach, container.ProfileRepo.Attach(container.EventBus))

	// Prometheus metrics
	container.Metrics = metrics.New(log)
	container.detach = append(container.detach, container.Metrics.Attach(container.EventBus))

	log.Info().Msg("Repositories initialized")

	return nil
}
