package trading

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// TradingService handles trade-related business logic.
//
// It is the entry point for trades submitted from outside the engine (HTTP,
// CLI). Every trade runs inside one host frame, so a failure anywhere, including
// a graduation triggered by the trade, leaves no trace.
//
// Responsibilities:
//   - Run safety validation before a trade reaches the router
//   - Execute trades and quotes against the router
//   - Serve trade history and tax totals
//   - Emit error events for rejected trades
type TradingService struct {
	log           zerolog.Logger
	host          *state.Host
	router        *Router
	tradeRepo     TradeRepositoryInterface
	safetyService *TradeSafetyService
	eventManager  *events.Manager
}

// NewTradingService creates a new trading service
func NewTradingService(
	host *state.Host,
	router *Router,
	tradeRepo TradeRepositoryInterface,
	safetyService *TradeSafetyService,
	eventManager *events.Manager,
	log zerolog.Logger,
) *TradingService {
	return &TradingService{
		log:           log.With().Str("service", "trading").Logger(),
		host:          host,
		router:        router,
		tradeRepo:     tradeRepo,
		safetyService: safetyService,
		eventManager:  eventManager,
	}
}

// TradeResult represents the result of a trade execution attempt
type TradeResult struct {
	Success bool          `json:"success"`
	Receipt *TradeReceipt `json:"receipt,omitempty"`
	// Reason, Code and Kind describe a rejection
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

func rejected(err error) *TradeResult {
	return &TradeResult{
		Success: false,
		Reason:  err.Error(),
		Code:    domain.CodeOf(err),
		Kind:    string(domain.KindOf(err)),
	}
}

// ExecuteTrade validates and executes a trade.
// Rejections by the engine are returned in the result with a nil error; the
// error is reserved for failures outside the engine's taxonomy.
func (s *TradingService) ExecuteTrade(req TradeRequest) (*TradeResult, error) {
	s.log.Info().
		Str("trader", req.Trader).
		Str("token_in", req.TokenIn).
		Str("token_out", req.TokenOut).
		Str("amount", req.Amount).
		Bool("exact_out", req.ExactOut).
		Str("reason", req.Reason).
		Msg("Executing trade")

	if s.safetyService == nil {
		return nil, fmt.Errorf("safety service not available")
	}
	var (
		receipt   *TradeReceipt
		validated bool
	)
	// Validation reads the same pools and balances the swap writes, so both
	// share one host frame
	err := s.host.Execute(func() error {
		trade, err := s.safetyService.ValidateTrade(req)
		if err != nil {
			return err
		}
		validated = true
		if req.AutoApprove {
			allowance := trade.Amount
			if trade.ExactOut {
				allowance = trade.Limit
			}
			if err := trade.InputLedger.Approve(trade.Trader, s.router.Address(), domain.Copy(allowance)); err != nil {
				return err
			}
		}
		if trade.ExactOut {
			receipt, err = s.router.SwapExactOut(trade.Trader, trade.TokenIn, trade.TokenOut, trade.Amount, trade.Limit, trade.Recipient, trade.Deadline)
		} else {
			receipt, err = s.router.SwapExactIn(trade.Trader, trade.TokenIn, trade.TokenOut, trade.Amount, trade.Limit, trade.Recipient, trade.Deadline)
		}
		return err
	})
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			s.log.Error().Err(err).Str("trader", req.Trader).Msg("Trade failed")
			return nil, fmt.Errorf("trade failed: %w", err)
		}
		stage := "router"
		if !validated {
			stage = "safety validations"
		}
		s.log.Warn().
			Err(err).
			Str("trader", req.Trader).
			Str("code", de.Code).
			Msg("Trade rejected by " + stage)
		s.emitError(err, req)
		return rejected(err), nil
	}

	s.log.Info().
		Str("trade_id", receipt.TradeID).
		Str("side", string(receipt.Side)).
		Str("token", receipt.Token.Hex()).
		Str("amount_in", receipt.AmountIn.String()).
		Str("net_out", receipt.NetOut.String()).
		Bool("graduated", receipt.Graduated).
		Msg("Trade executed successfully")

	return &TradeResult{Success: true, Receipt: receipt}, nil
}

// Quote prices a trade without executing it
func (s *TradingService) Quote(tokenIn, tokenOut common.Address, amount *big.Int, exactOut bool) (Quote, error) {
	var q Quote
	err := s.host.Execute(func() error {
		var err error
		if exactOut {
			q, err = s.router.GetAmountsIn(tokenIn, tokenOut, amount)
		} else {
			q, err = s.router.GetAmountsOut(tokenIn, tokenOut, amount)
		}
		return err
	})
	return q, err
}

// SetPolicy replaces the router's trade policy on behalf of caller
func (s *TradingService) SetPolicy(caller common.Address, policy domain.TradePolicy) error {
	err := s.host.Execute(func() error {
		return s.router.SetPolicy(caller, policy)
	})
	if err != nil {
		return err
	}
	s.log.Info().
		Uint64("buy_tax_bps", policy.BuyTaxBps).
		Uint64("sell_tax_bps", policy.SellTaxBps).
		Uint64("max_hold_bps", policy.MaxHoldBps).
		Msg("Trade policy updated")
	return nil
}

// Policy returns the router's current trade policy
func (s *TradingService) Policy() domain.TradePolicy {
	var p domain.TradePolicy
	_ = s.host.Execute(func() error {
		p = s.router.Policy()
		return nil
	})
	return p
}

// GetHistory returns recent trades, optionally for one token
func (s *TradingService) GetHistory(token string, limit int) ([]TradeRecord, error) {
	if s.tradeRepo == nil {
		return nil, fmt.Errorf("trade repository not available")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if token == "" {
		return s.tradeRepo.GetHistory(limit)
	}
	return s.tradeRepo.GetByToken(token, limit)
}

// GetTaxTotals returns the tax a token has produced
func (s *TradingService) GetTaxTotals(token string) ([]TaxTotals, error) {
	if s.tradeRepo == nil {
		return nil, fmt.Errorf("trade repository not available")
	}
	return s.tradeRepo.GetTaxTotals(token)
}

func (s *TradingService) emitError(err error, req TradeRequest) {
	if s.eventManager == nil {
		return
	}
	s.eventManager.EmitError("trading", err, map[string]interface{}{
		"trader":    req.Trader,
		"token_in":  req.TokenIn,
		"token_out": req.TokenOut,
		"amount":    req.Amount,
		"exact_out": req.ExactOut,
	})
}
