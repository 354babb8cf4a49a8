package airdrop

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var claimValidate = validator.New()

// ClaimRequest is an externally submitted claim. Amount is a decimal string in the smallest unit.
type ClaimRequest struct {
	Index   uint64   `json:"index"`
	Account string   `json:"account" validate:"required,eth_addr"`
	Amount  string   `json:"amount" validate:"required,numeric"`
	Proof   []string `json:"proof" validate:"dive,len=66,startswith=0x"`
}

// AirdropService runs claims inside the host and serves airdrop views
type AirdropService struct {
	log          zerolog.Logger
	host         *state.Host
	distributor  *Distributor
	eventManager *events.Manager
}

// NewAirdropService creates a new airdrop service
func NewAirdropService(host *state.Host, distributor *Distributor, eventManager *events.Manager, log zerolog.Logger) *AirdropService {
	return &AirdropService{
		log:          log.With().Str("service", "airdrop_api").Logger(),
		host:         host,
		distributor:  distributor,
		eventManager: eventManager,
	}
}

// Claim validates and executes a claim against token's airdrop
func (s *AirdropService) Claim(token common.Address, req ClaimRequest) error {
	if err := claimValidate.Struct(req); err != nil {
		return domain.Errorf(domain.ErrInvalidParameter, "%v", err)
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return domain.Errorf(domain.ErrInvalidParameter, "amount %q", req.Amount)
	}
	proof := make([]common.Hash, len(req.Proof))
	for i, p := range req.Proof {
		proof[i] = common.HexToHash(p)
	}
	account := common.HexToAddress(req.Account)

	err := s.host.Execute(func() error {
		return s.distributor.Claim(token, req.Index, account, amount, proof)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("token", token.Hex()).Uint64("index", req.Index).Msg("Claim rejected")
		if s.eventManager != nil {
			s.eventManager.EmitError("airdrop", err, map[string]interface{}{
				"token":   token.Hex(),
				"index":   req.Index,
				"account": req.Account,
			})
		}
		return err
	}
	s.log.Info().Str("token", token.Hex()).Uint64("index", req.Index).Str("account", account.Hex()).Msg("Claim paid")
	return nil
}

// Drop returns token's airdrop
func (s *AirdropService) Drop(token common.Address) (Drop, error) {
	var (
		d  Drop
		ok bool
	)
	_ = s.host.Execute(func() error {
		d, ok = s.distributor.Drop(token)
		return nil
	})
	if !ok {
		return Drop{}, domain.Errorf(domain.ErrNotRegistered, "airdrop for %s", token.Hex())
	}
	return d, nil
}

// Drops returns every airdrop
func (s *AirdropService) Drops() []Drop {
	var out []Drop
	_ = s.host.Execute(func() error {
		out = s.distributor.Drops()
		return nil
	})
	return out
}

// IsClaimed reports whether index has claimed token's airdrop
func (s *AirdropService) IsClaimed(token common.Address, index uint64) bool {
	var claimed bool
	_ = s.host.Execute(func() error {
		claimed = s.distributor.IsClaimed(token, index)
		return nil
	})
	return claimed
}
