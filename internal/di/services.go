// Package di provides dependency injection for the engine and its services.
package di

import (
	"fmt"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/airdrop"
	"github.com/aristath/launchpad/internal/modules/graduation"
	"github.com/aristath/launchpad/internal/modules/launch"
	"github.com/aristath/launchpad/internal/modules/token"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/aristath/launchpad/internal/modules/venues"
	"github.com/aristath/launchpad/internal/state"
	"github.com/rs/zerolog"
)

// InitializeServices builds the engine and the services in front of it.
// Engine components share one journal; the host serializes every entry point.
func InitializeServices(container *Container, cfg *config.Config, clock domain.Clock, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if clock == nil {
		clock = state.SystemClock{}
	}

	journal := state.NewJournal()
	container.Host = state.NewHost(journal, clock)
	accounts := cfg.Accounts
	emitter := container.EventManager

	// Token ledgers, with the base asset distributed per the network catalogue
	container.Tokens = token.NewRegistry(journal)
	base, err := deployBaseToken(container.Tokens, cfg)
	if err != nil {
		return fmt.Errorf("failed to deploy base asset: %w", err)
	}
	container.BaseToken = base

	// Router (bonding pools, taxes, hold caps)
	container.Router, err = trading.NewRouter(journal, clock, emitter, base, trading.RouterConfig{
		Address:     accounts.Router,
		Admin:       accounts.Admin,
		Launcher:    accounts.Launcher,
		Coordinator: accounts.Coordinator,
		Treasury:    accounts.Treasury,
		Policy:      cfg.Policy,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// Graduation venues
	adapters := make([]venues.Adapter, 0, len(cfg.Network.Venues))
	for _, v := range cfg.Network.Venues {
		adapter, err := newVenueAdapter(journal, container.Tokens, v, log)
		if err != nil {
			return err
		}
		adapters = append(adapters, adapter)
	}
	container.VenueRegistry, err = venues.NewRegistry(adapters...)
	if err != nil {
		return fmt.Errorf("failed to register venues: %w", err)
	}

	// Graduation coordinator; the router calls back into it after every buy
	container.Coordinator, err = graduation.NewCoordinator(journal, clock, emitter, container.Router, container.VenueRegistry, graduation.Config{
		Address:      accounts.Coordinator,
		Admin:        accounts.Admin,
		Launcher:     accounts.Launcher,
		Treasury:     accounts.Treasury,
		ThresholdBps: cfg.ThresholdBps,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create graduation coordinator: %w", err)
	}
	container.Router.SetGraduationHook(container.Coordinator)

	// Airdrop distributor
	container.Distributor, err = airdrop.NewDistributor(journal, container.Tokens, clock, emitter, airdrop.Config{
		Address:  accounts.Distributor,
		Admin:    accounts.Admin,
		Launcher: accounts.Launcher,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create airdrop distributor: %w", err)
	}

	// Launch orchestrator
	container.Orchestrator, err = launch.NewOrchestrator(journal, clock, emitter, container.Tokens, container.Router, container.Coordinator, container.Distributor, launch.Config{
		Address:        accounts.Launcher,
		Treasury:       accounts.Treasury,
		InitialSupply:  cfg.Launch.InitialSupply,
		PlatformFeeBps: cfg.Launch.PlatformFeeBps,
		AirdropCapBps:  cfg.Launch.AirdropCapBps,
		PurchaseCapBps: cfg.Launch.PurchaseCapBps,
		Curve:          cfg.Curve,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create launch orchestrator: %w", err)
	}

	// Services
	container.TradeSafetyService = trading.NewTradeSafetyService(
		container.Router,
		container.TradeRepo,
		clock,
		trading.SafetyConfig{MaxTradesPerMinute: cfg.MaxTradesPerMinute},
		log,
	)
	container.TradingService = trading.NewTradingService(
		container.Host,
		container.Router,
		container.TradeRepo,
		container.TradeSafetyService,
		container.EventManager,
		log,
	)
	container.GraduationService = graduation.NewGraduationService(
		container.Host,
		container.Coordinator,
		container.Router,
		container.ProfileRepo,
		container.EventManager,
		log,
	)
	container.AirdropService = airdrop.NewAirdropService(container.Host, container.Distributor, container.EventManager, log)
	container.LaunchService = launch.NewLaunchService(
		container.Host,
		container.Orchestrator,
		base,
		container.EventStore,
		container.EventManager,
		log,
	)

	log.Info().
		Int("venues", len(adapters)).
		Str("base", base.Address().Hex()).
		Msg("Engine and services initialized")

	return nil
}

// deployBaseToken mints the base supply to the treasury and hands out the
// catalogue's allocations from there
func deployBaseToken(tokens *token.Registry, cfg *config.Config) (*token.Token, error) {
	supply, balances, err := cfg.Network.BaseSupply()
	if err != nil {
		return nil, err
	}
	treasury := cfg.Accounts.Treasury
	base, err := tokens.Add(token.Config{
		Address: cfg.Accounts.BaseToken,
		Name:    cfg.Network.Base.Name,
		Symbol:  cfg.Network.Base.Symbol,
		Supply:  supply,
		Holder:  treasury,
	})
	if err != nil {
		return nil, err
	}
	for account, amount := range balances {
		if account == treasury {
			continue
		}
		if err := base.Transfer(treasury, account, amount); err != nil {
			return nil, fmt.Errorf("allocation for %s: %w", account.Hex(), err)
		}
	}
	return base, nil
}

func newVenueAdapter(journal *state.Journal, ledgers domain.LedgerResolver, v config.Venue, log zerolog.Logger) (venues.Adapter, error) {
	switch v.Kind {
	case domain.VenueClassicAMM:
		return venues.NewClassicAMM(journal, ledgers, v.Ref(), log), nil
	case domain.VenueConcentratedAMM:
		return venues.NewConcentratedAMM(journal, ledgers, v.Ref(), log), nil
	case domain.VenueSolidlyAMM:
		return venues.NewSolidlyAMM(journal, ledgers, v.Ref(), log), nil
	default:
		return nil, fmt.Errorf("venue %s: unsupported kind %q", v.Name, v.Kind)
	}
}
