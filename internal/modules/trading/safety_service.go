package trading

import (
	"math/big"
	"strings"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// requestValidate is the validator instance for trade requests.
// Initialized in init() with the custom amount validator.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("amount", validateAmount)
	_ = requestValidate.RegisterValidation("uamount", validateUnsignedAmount)
}

// validateAmount accepts positive base-10 integers in the smallest unit
func validateAmount(fl validator.FieldLevel) bool {
	v, ok := new(big.Int).SetString(fl.Field().String(), 10)
	return ok && v.Sign() > 0
}

// validateUnsignedAmount accepts zero or positive base-10 integers in the smallest unit
func validateUnsignedAmount(fl validator.FieldLevel) bool {
	v, ok := new(big.Int).SetString(fl.Field().String(), 10)
	return ok && v.Sign() >= 0
}

// TradeRequest is an externally submitted trade. Amounts are decimal strings in
// the smallest unit. Limit is the minimum net output for exact-in trades and the
// maximum input for exact-out trades.
type TradeRequest struct {
	Trader    string `json:"trader" validate:"required,eth_addr"`
	TokenIn   string `json:"token_in" validate:"required,eth_addr"`
	TokenOut  string `json:"token_out" validate:"required,eth_addr,nefield=TokenIn"`
	Amount    string `json:"amount" validate:"required,amount"`
	Limit     string `json:"limit,omitempty" validate:"omitempty,uamount"`
	Recipient string `json:"recipient,omitempty" validate:"omitempty,eth_addr"`
	// Deadline is a unix timestamp in seconds; zero means none
	Deadline int64 `json:"deadline,omitempty" validate:"gte=0"`
	ExactOut bool  `json:"exact_out"`
	// AutoApprove grants the router the allowance the trade needs before executing
	AutoApprove bool   `json:"auto_approve"`
	Reason      string `json:"reason,omitempty" validate:"max=256"`
}

// ValidatedTrade is a request that passed every safety layer, in engine types
type ValidatedTrade struct {
	Trader    common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	Recipient common.Address
	Amount    *big.Int
	Limit     *big.Int
	Deadline  time.Time
	ExactOut  bool
	Side      domain.TradeSide
	// InputLedger is the ledger the router pulls the input from
	InputLedger domain.Ledger
}

// SafetyConfig tunes the optional safety layers
type SafetyConfig struct {
	// MaxTradesPerMinute caps trades per trader; zero disables the check
	MaxTradesPerMinute int
}

// TradeSafetyService validates trades before they reach the router.
// Economic outcomes (slippage, max hold, invariants) stay with the router; the
// layers here reject requests that could never succeed, early and cheaply.
type TradeSafetyService struct {
	router    *Router
	tradeRepo TradeRepositoryInterface
	clock     domain.Clock
	cfg       SafetyConfig
	log       zerolog.Logger
}

// NewTradeSafetyService creates a new trade safety service
func NewTradeSafetyService(
	router *Router,
	tradeRepo TradeRepositoryInterface,
	clock domain.Clock,
	cfg SafetyConfig,
	log zerolog.Logger,
) *TradeSafetyService {
	return &TradeSafetyService{
		router:    router,
		tradeRepo: tradeRepo,
		clock:     clock,
		cfg:       cfg,
		log:       log.With().Str("service", "trade_safety").Logger(),
	}
}

// ValidateTrade runs all validation layers and returns the parsed trade.
// Layers 2 to 4 read pools and balances, so callers run it inside a host frame.
func (s *TradeSafetyService) ValidateTrade(req TradeRequest) (*ValidatedTrade, error) {
	s.log.Debug().
		Str("trader", req.Trader).
		Str("token_in", req.TokenIn).
		Str("token_out", req.TokenOut).
		Str("amount", req.Amount).
		Bool("exact_out", req.ExactOut).
		Msg("Validating trade")

	// Layer 0: request shape
	trade, err := s.parseRequest(req)
	if err != nil {
		return nil, err
	}

	// Layer 1: deadline
	if err := s.checkDeadline(trade); err != nil {
		return nil, err
	}

	// Layer 2: path resolves to a registered pool
	if err := s.checkPath(trade); err != nil {
		return nil, err
	}

	// Layer 3: input funds (exact-in only; exact-out input is priced by the router)
	if err := s.checkInputFunds(trade); err != nil {
		return nil, err
	}

	// Layer 4: per-trader rate limit
	if err := s.checkTradeRate(trade); err != nil {
		return nil, err
	}

	s.log.Debug().Str("trader", req.Trader).Msg("Trade validation passed")
	return trade, nil
}

// parseRequest validates struct tags and converts to engine types
// Layer 0: Request Shape (HARD)
func (s *TradeSafetyService) parseRequest(req TradeRequest) (*ValidatedTrade, error) {
	if err := requestValidate.Struct(req); err != nil {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "%s", describeValidation(err))
	}

	trade := &ValidatedTrade{
		Trader:    common.HexToAddress(req.Trader),
		TokenIn:   common.HexToAddress(req.TokenIn),
		TokenOut:  common.HexToAddress(req.TokenOut),
		Recipient: common.HexToAddress(req.Trader),
		Amount:    parseStored(req.Amount),
		ExactOut:  req.ExactOut,
	}
	if req.Recipient != "" {
		trade.Recipient = common.HexToAddress(req.Recipient)
	}
	if trade.Trader == (common.Address{}) || trade.Recipient == (common.Address{}) {
		return nil, domain.Errorf(domain.ErrZeroAddress, "trader and recipient must be non-zero")
	}
	if req.Limit != "" {
		limit, ok := new(big.Int).SetString(req.Limit, 10)
		if !ok || limit.Sign() < 0 {
			return nil, domain.Errorf(domain.ErrInvalidParameter, "limit %q", req.Limit)
		}
		trade.Limit = limit
	}
	if req.Deadline > 0 {
		trade.Deadline = time.Unix(req.Deadline, 0).UTC()
	}
	return trade, nil
}

// checkDeadline rejects requests already past their deadline
// Layer 1: Deadline (HARD)
func (s *TradeSafetyService) checkDeadline(trade *ValidatedTrade) error {
	if trade.Deadline.IsZero() || s.clock == nil {
		return nil
	}
	if s.clock.Now().After(trade.Deadline) {
		return domain.Errorf(domain.ErrExpired, "deadline %s already passed", trade.Deadline.Format(time.RFC3339))
	}
	return nil
}

// checkPath resolves the trade side and the ledger the input comes from
// Layer 2: Path (HARD)
func (s *TradeSafetyService) checkPath(trade *ValidatedTrade) error {
	base := s.router.Base()
	switch {
	case trade.TokenIn == base.Address():
		p, ok := s.router.Pool(trade.TokenOut)
		if !ok {
			return domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", trade.TokenOut.Hex())
		}
		if p.Swept() || p.Token().Graduated() {
			return domain.Errorf(domain.ErrAlreadyGraduated, "%s trades on its venues now", p.Token().Symbol())
		}
		trade.Side = domain.TradeSideBuy
		trade.InputLedger = base
	case trade.TokenOut == base.Address():
		p, ok := s.router.Pool(trade.TokenIn)
		if !ok {
			return domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", trade.TokenIn.Hex())
		}
		if p.Swept() || p.Token().Graduated() {
			return domain.Errorf(domain.ErrAlreadyGraduated, "%s trades on its venues now", p.Token().Symbol())
		}
		trade.Side = domain.TradeSideSell
		trade.InputLedger = p.Token()
	default:
		return domain.Errorf(domain.ErrInvalidPath, "one side must be the base asset %s", base.Address().Hex())
	}
	return nil
}

// checkInputFunds rejects exact-in trades the trader cannot fund
// Layer 3: Input Funds (HARD)
func (s *TradeSafetyService) checkInputFunds(trade *ValidatedTrade) error {
	if trade.ExactOut {
		return nil
	}
	if bal := trade.InputLedger.BalanceOf(trade.Trader); bal.Cmp(trade.Amount) < 0 {
		return domain.Errorf(domain.ErrInsufficientBalance, "%s holds %s %s, trade needs %s",
			trade.Trader.Hex(), bal, trade.InputLedger.Symbol(), trade.Amount)
	}
	return nil
}

// checkTradeRate caps how often one trader may trade
// Layer 4: Trade Rate (SOFT when history is unavailable)
func (s *TradeSafetyService) checkTradeRate(trade *ValidatedTrade) error {
	if s.cfg.MaxTradesPerMinute <= 0 {
		return nil
	}
	if s.tradeRepo == nil || s.clock == nil {
		s.log.Warn().Msg("Trade history unavailable - skipping rate check")
		return nil
	}
	count, err := s.tradeRepo.GetTradeCountSince(trade.Trader.Hex(), s.clock.Now().Add(-time.Minute))
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to count recent trades - allowing trade")
		return nil
	}
	if count >= s.cfg.MaxTradesPerMinute {
		return domain.Errorf(domain.ErrInvalidParameter, "%s placed %d trades in the last minute (limit %d)",
			trade.Trader.Hex(), count, s.cfg.MaxTradesPerMinute)
	}
	return nil
}

// describeValidation flattens validator errors into one message
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
