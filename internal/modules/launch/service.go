package launch

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var requestValidate = validator.New()

// LaunchRequest is an externally submitted launch. Amounts are decimal strings in the smallest unit.
type LaunchRequest struct {
	Creator         string             `json:"creator" validate:"required,eth_addr"`
	Name            string             `json:"name" validate:"required,max=64"`
	Symbol          string             `json:"symbol" validate:"required,max=16,alphanum"`
	Metadata        string             `json:"metadata,omitempty" validate:"max=2048"`
	InitialPurchase string             `json:"initial_purchase,omitempty" validate:"omitempty,numeric"`
	DexConfigs      []DexConfigRequest `json:"dex_configs" validate:"required,min=1,dive"`
	Airdrop         *AirdropRequest    `json:"airdrop,omitempty"`
	// AutoApprove grants the orchestrator the base allowance the first buy needs
	AutoApprove bool `json:"auto_approve"`
}

// DexConfigRequest is one venue slice of a launch request
type DexConfigRequest struct {
	VenueRef  string `json:"venue_ref" validate:"required,eth_addr"`
	VenueKind string `json:"venue_kind" validate:"required,oneof=classic_amm concentrated_liquidity_amm solidly_amm"`
	FeeTier   uint32 `json:"fee_tier"`
	WeightBps uint32 `json:"weight_bps" validate:"gt=0,lte=10000"`
}

// AirdropRequest is the optional airdrop slice of a launch request
type AirdropRequest struct {
	MerkleRoot    string `json:"merkle_root" validate:"required,len=66,startswith=0x,hexadecimal"`
	ClaimantCount uint64 `json:"claimant_count" validate:"gt=0"`
	PercentageBps uint64 `json:"percentage_bps" validate:"gt=0,lte=10000"`
}

// Params converts a validated request into launch parameters
func (r LaunchRequest) Params() (Params, error) {
	if err := requestValidate.Struct(r); err != nil {
		return Params{}, domain.Errorf(domain.ErrInvalidParameter, "%v", err)
	}
	p := Params{
		Creator:         common.HexToAddress(r.Creator),
		Name:            r.Name,
		Symbol:          r.Symbol,
		Metadata:        r.Metadata,
		InitialPurchase: new(big.Int),
	}
	if r.InitialPurchase != "" {
		if _, ok := p.InitialPurchase.SetString(r.InitialPurchase, 10); !ok || p.InitialPurchase.Sign() < 0 {
			return Params{}, domain.Errorf(domain.ErrInvalidParameter, "initial purchase %q", r.InitialPurchase)
		}
	}
	for _, c := range r.DexConfigs {
		kind, err := domain.ParseVenueKind(c.VenueKind)
		if err != nil {
			return Params{}, err
		}
		p.DexConfigs = append(p.DexConfigs, domain.DexConfig{
			VenueRef:  common.HexToAddress(c.VenueRef),
			VenueKind: kind,
			FeeTier:   c.FeeTier,
			WeightBps: c.WeightBps,
		})
	}
	if r.Airdrop != nil {
		p.Airdrop = AirdropParams{
			MerkleRoot:    common.HexToHash(r.Airdrop.MerkleRoot),
			ClaimantCount: r.Airdrop.ClaimantCount,
			PercentageBps: r.Airdrop.PercentageBps,
		}
	}
	return p, nil
}

// LaunchService runs launches inside the host and serves launch history
type LaunchService struct {
	log          zerolog.Logger
	host         *state.Host
	orchestrator *Orchestrator
	base         domain.Ledger
	eventStore   *events.Store
	eventManager *events.Manager
}

// NewLaunchService creates a new launch service
func NewLaunchService(
	host *state.Host,
	orchestrator *Orchestrator,
	base domain.Ledger,
	eventStore *events.Store,
	eventManager *events.Manager,
	log zerolog.Logger,
) *LaunchService {
	return &LaunchService{
		log:          log.With().Str("service", "launch_api").Logger(),
		host:         host,
		orchestrator: orchestrator,
		base:         base,
		eventStore:   eventStore,
		eventManager: eventManager,
	}
}

// Launch validates and runs a launch
func (s *LaunchService) Launch(req LaunchRequest) (*Result, error) {
	params, err := req.Params()
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("creator", req.Creator).
		Str("symbol", req.Symbol).
		Str("initial_purchase", params.InitialPurchase.String()).
		Int("venues", len(params.DexConfigs)).
		Msg("Launching token")

	var result *Result
	err = s.host.Execute(func() error {
		if req.AutoApprove && params.InitialPurchase.Sign() > 0 {
			if err := s.base.Approve(params.Creator, s.orchestrator.Address(), params.InitialPurchase); err != nil {
				return err
			}
		}
		var err error
		result, err = s.orchestrator.Launch(params)
		return err
	})
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			s.log.Error().Err(err).Str("creator", req.Creator).Msg("Launch failed")
			return nil, fmt.Errorf("launch failed: %w", err)
		}
		s.log.Warn().Err(err).Str("creator", req.Creator).Str("code", de.Code).Msg("Launch rejected")
		if s.eventManager != nil {
			s.eventManager.EmitError("launch", err, map[string]interface{}{
				"creator": req.Creator,
				"symbol":  req.Symbol,
			})
		}
		return nil, err
	}
	return result, nil
}

// History returns recent launch notifications, newest first
func (s *LaunchService) History(limit int) ([]*events.LaunchCompletedData, error) {
	if s.eventStore == nil {
		return nil, fmt.Errorf("event store not available")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	recent, err := s.eventStore.Recent(limit, events.LaunchCompleted)
	if err != nil {
		return nil, err
	}
	out := make([]*events.LaunchCompletedData, 0, len(recent))
	for _, e := range recent {
		if data, ok := e.GetTypedData().(*events.LaunchCompletedData); ok {
			out = append(out, data)
		}
	}
	return out, nil
}

// Config returns the launch economics
func (s *LaunchService) Config() Config {
	return s.orchestrator.Config()
}
