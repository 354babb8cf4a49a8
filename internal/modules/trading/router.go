package trading

import (
	"math/big"
	"sort"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GraduationHook is the coordinator surface the router calls after each trade
type GraduationHook interface {
	// TryGraduate graduates token if it is eligible
	TryGraduate(caller, token common.Address) (bool, error)
	// Creator returns the registered creator of token
	Creator(token common.Address) (common.Address, bool)
}

// RouterConfig holds the router's identity and the capabilities it honours
type RouterConfig struct {
	Address common.Address
	// Admin may change the policy, register pools and resync reserves
	Admin common.Address
	// Launcher may register pools and seed them
	Launcher common.Address
	// Coordinator may sweep bonding liquidity at graduation
	Coordinator common.Address
	// Treasury receives the platform half of every tax
	Treasury common.Address
	Policy   domain.TradePolicy
}

// Quote is the result of a pure trade simulation
type Quote struct {
	Side     domain.TradeSide `json:"side"`
	Token    common.Address   `json:"token"`
	AmountIn *big.Int         `json:"amount_in"`
	GrossOut *big.Int         `json:"gross_out"`
	Tax      *big.Int         `json:"tax"`
	NetOut   *big.Int         `json:"net_out"`
}

// TradeReceipt describes an executed trade
type TradeReceipt struct {
	Quote
	TradeID     string         `json:"trade_id"`
	Pool        common.Address `json:"pool"`
	Trader      common.Address `json:"trader"`
	Recipient   common.Address `json:"recipient"`
	ExactOut    bool           `json:"exact_out"`
	CreatorTax  *big.Int       `json:"creator_tax"`
	PlatformTax *big.Int       `json:"platform_tax"`
	Graduated   bool           `json:"graduated"`
}

// Router is the only caller allowed to mutate reserve pools. It resolves trade
// direction, applies tax and the max-hold policy, and triggers graduation checks.
type Router struct {
	journal *state.Journal
	clock   domain.Clock
	emitter events.Emitter
	log     zerolog.Logger
	guard   state.Guard

	cfg    RouterConfig
	base   domain.Ledger
	policy domain.TradePolicy
	pools  map[common.Address]*pool.Pool
	hook   GraduationHook
}

// NewRouter creates a router trading launched tokens against base
func NewRouter(journal *state.Journal, clock domain.Clock, emitter events.Emitter, base domain.Ledger, cfg RouterConfig, log zerolog.Logger) (*Router, error) {
	if cfg.Address == (common.Address{}) || cfg.Admin == (common.Address{}) || cfg.Treasury == (common.Address{}) {
		return nil, domain.Errorf(domain.ErrZeroAddress, "router, admin and treasury addresses are required")
	}
	if base == nil {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "base ledger is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Router{
		journal: journal,
		clock:   clock,
		emitter: emitter,
		log:     log.With().Str("service", "router").Logger(),
		cfg:     cfg,
		base:    base,
		policy:  cfg.Policy,
		pools:   make(map[common.Address]*pool.Pool),
	}, nil
}

// SetGraduationHook installs the coordinator. Called once during wiring.
func (r *Router) SetGraduationHook(hook GraduationHook) {
	r.hook = hook
}

// SetCapabilities fills in launcher and coordinator addresses known only after wiring
func (r *Router) SetCapabilities(launcher, coordinator common.Address) {
	r.cfg.Launcher = launcher
	r.cfg.Coordinator = coordinator
}

func (r *Router) Address() common.Address  { return r.cfg.Address }
func (r *Router) Treasury() common.Address { return r.cfg.Treasury }
func (r *Router) Base() domain.Ledger       { return r.base }

// Policy returns the current trade policy
func (r *Router) Policy() domain.TradePolicy {
	return r.policy
}

// Pool returns the bonding pool registered for token
func (r *Router) Pool(token common.Address) (*pool.Pool, bool) {
	p, ok := r.pools[token]
	return p, ok
}

// Pools returns every registered pool ordered by token address
func (r *Router) Pools() []*pool.Pool {
	out := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token().Address().Cmp(out[j].Token().Address()) < 0
	})
	return out
}

// RegisterPool binds a pool to its token. Launcher or admin only.
func (r *Router) RegisterPool(caller common.Address, p *pool.Pool) error {
	if caller != r.cfg.Launcher && caller != r.cfg.Admin {
		return domain.Errorf(domain.ErrUnauthorized, "register pool by %s", caller.Hex())
	}
	if p == nil {
		return domain.Errorf(domain.ErrInvalidParameter, "nil pool")
	}
	if p.Router() != r.cfg.Address {
		return domain.Errorf(domain.ErrUnauthorized, "pool %s is bound to another router", p.Address().Hex())
	}
	if p.Base().Address() != r.base.Address() {
		return domain.Errorf(domain.ErrInvalidPath, "pool %s trades a different base asset", p.Address().Hex())
	}
	tok := p.Token().Address()
	if _, exists := r.pools[tok]; exists {
		return domain.Errorf(domain.ErrAlreadyRegistered, "pool for %s", tok.Hex())
	}
	r.pools[tok] = p
	r.journal.Record(func() { delete(r.pools, tok) })
	return nil
}

// SetPolicy replaces the trade policy. Admin only.
func (r *Router) SetPolicy(caller common.Address, policy domain.TradePolicy) error {
	if caller != r.cfg.Admin {
		return domain.Errorf(domain.ErrUnauthorized, "set policy by %s", caller.Hex())
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	prev := r.policy
	r.policy = policy
	r.journal.Record(func() { r.policy = prev })
	r.journal.OnCommit(func() {
		r.emit(events.PolicyUpdated, &events.PolicyUpdatedData{
			BuyTaxBefore:  prev.BuyTaxBps,
			SellTaxBefore: prev.SellTaxBps,
			MaxHoldBefore: prev.MaxHoldBps,
			BuyTaxAfter:   policy.BuyTaxBps,
			SellTaxAfter:  policy.SellTaxBps,
			MaxHoldAfter:  policy.MaxHoldBps,
		})
	})
	return nil
}

// resolve maps a (tokenIn, tokenOut) pair to a side and a bonding pool
func (r *Router) resolve(tokenIn, tokenOut common.Address) (domain.TradeSide, *pool.Pool, error) {
	if tokenIn == tokenOut {
		return "", nil, domain.Errorf(domain.ErrInvalidPath, "identical tokens")
	}
	base := r.base.Address()
	switch {
	case tokenIn == base:
		if p, ok := r.pools[tokenOut]; ok {
			return domain.TradeSideBuy, p, nil
		}
		return "", nil, domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", tokenOut.Hex())
	case tokenOut == base:
		if p, ok := r.pools[tokenIn]; ok {
			return domain.TradeSideSell, p, nil
		}
		return "", nil, domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", tokenIn.Hex())
	default:
		return "", nil, domain.Errorf(domain.ErrInvalidPath, "one side must be the base asset")
	}
}

// grossOut asks the pool for the curve output of amountIn
func grossOut(p *pool.Pool, side domain.TradeSide, amountIn *big.Int) (*big.Int, error) {
	if side == domain.TradeSideBuy {
		return p.QuoteTokenOut(amountIn)
	}
	return p.QuoteBaseOut(amountIn)
}

// applyTax splits gross into (tax, net). Tax is floored.
func applyTax(gross *big.Int, rate uint64) (tax, net *big.Int) {
	tax = domain.MulDiv(gross, new(big.Int).SetUint64(rate), domain.BigTaxDn)
	net = new(big.Int).Sub(gross, tax)
	return tax, net
}

// grossUp returns the smallest gross whose post-tax net covers net.
// net(g) = g - floor(g*rate/TD) = ceil(g*(TD-rate)/TD), so g = floor((net-1)*TD/(TD-rate)) + 1.
func grossUp(net *big.Int, rate uint64) *big.Int {
	keep := new(big.Int).SetUint64(domain.TaxDenominator - rate)
	g := domain.MulDiv(new(big.Int).Sub(net, domain.Big1), domain.BigTaxDn, keep)
	return g.Add(g, domain.Big1)
}

// splitTax halves tax between creator and treasury; the odd unit goes to the treasury
func splitTax(tax *big.Int) (creator, treasury *big.Int) {
	creator = new(big.Int).Quo(tax, domain.Big2)
	treasury = new(big.Int).Sub(tax, creator)
	return creator, treasury
}

func (r *Router) quoteOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (Quote, *pool.Pool, error) {
	if !domain.IsPositive(amountIn) {
		return Quote{}, nil, domain.Errorf(domain.ErrZeroAmount, "amount in")
	}
	side, p, err := r.resolve(tokenIn, tokenOut)
	if err != nil {
		return Quote{}, nil, err
	}
	gross, err := grossOut(p, side, amountIn)
	if err != nil {
		return Quote{}, nil, err
	}
	tax, net := applyTax(gross, r.policy.TaxFor(side))
	return Quote{
		Side:     side,
		Token:    p.Token().Address(),
		AmountIn: new(big.Int).Set(amountIn),
		GrossOut: gross,
		Tax:      tax,
		NetOut:   net,
	}, p, nil
}

func (r *Router) quoteIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (Quote, *pool.Pool, error) {
	if !domain.IsPositive(amountOut) {
		return Quote{}, nil, domain.Errorf(domain.ErrZeroAmount, "amount out")
	}
	side, p, err := r.resolve(tokenIn, tokenOut)
	if err != nil {
		return Quote{}, nil, err
	}
	wantGross := grossUp(amountOut, r.policy.TaxFor(side))

	var amountIn *big.Int
	if side == domain.TradeSideBuy {
		amountIn, err = p.QuoteBaseIn(wantGross)
	} else {
		amountIn, err = p.QuoteTokenIn(wantGross)
	}
	if err != nil {
		return Quote{}, nil, err
	}
	// the minimal input can overshoot the requested gross by rounding; report what it buys
	return r.quoteOut(tokenIn, tokenOut, amountIn)
}

// GetAmountsOut simulates SwapExactIn
func (r *Router) GetAmountsOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (Quote, error) {
	q, _, err := r.quoteOut(tokenIn, tokenOut, amountIn)
	return q, err
}

// GetAmountsIn simulates SwapExactOut: the input needed for a net output of at least amountOut
func (r *Router) GetAmountsIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (Quote, error) {
	q, _, err := r.quoteIn(tokenIn, tokenOut, amountOut)
	return q, err
}

// SwapExactIn sells exactly amountIn of tokenIn for at least minOut of tokenOut, after tax.
// The caller must have approved the router for amountIn.
func (r *Router) SwapExactIn(caller, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int, recipient common.Address, deadline time.Time) (*TradeReceipt, error) {
	receipt, err := r.swap(caller, recipient, deadline, false, func() (Quote, *pool.Pool, error) {
		q, p, err := r.quoteOut(tokenIn, tokenOut, amountIn)
		if err != nil {
			return q, p, err
		}
		if q.NetOut.Cmp(domain.Copy(minOut)) < 0 {
			return q, p, domain.Errorf(domain.ErrInsufficientOutput, "net out %s below minimum %s", q.NetOut, domain.Copy(minOut))
		}
		return q, p, nil
	})
	if err != nil {
		return nil, err
	}
	return r.afterTrade(receipt)
}

// SwapExactOut buys a net amountOut of tokenOut spending at most maxIn of tokenIn
func (r *Router) SwapExactOut(caller, tokenIn, tokenOut common.Address, amountOut, maxIn *big.Int, recipient common.Address, deadline time.Time) (*TradeReceipt, error) {
	receipt, err := r.swap(caller, recipient, deadline, true, func() (Quote, *pool.Pool, error) {
		q, p, err := r.quoteIn(tokenIn, tokenOut, amountOut)
		if err != nil {
			return q, p, err
		}
		if maxIn == nil || q.AmountIn.Cmp(maxIn) > 0 {
			return q, p, domain.Errorf(domain.ErrExcessiveInput, "requires %s, max %s", q.AmountIn, domain.FormatAmount(maxIn))
		}
		return q, p, nil
	})
	if err != nil {
		return nil, err
	}
	return r.afterTrade(receipt)
}

// swap runs one trade under the router guard. Graduation is checked by the caller
// once the guard is released, so the coordinator can call back into the router.
func (r *Router) swap(caller, recipient common.Address, deadline time.Time, exactOut bool, price func() (Quote, *pool.Pool, error)) (*TradeReceipt, error) {
	release, err := r.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if !deadline.IsZero() && r.clock.Now().After(deadline) {
		return nil, domain.Errorf(domain.ErrExpired, "deadline %s", deadline.Format(time.RFC3339))
	}
	if caller == (common.Address{}) || recipient == (common.Address{}) {
		return nil, domain.Errorf(domain.ErrZeroAddress, "caller and recipient are required")
	}

	q, p, err := price()
	if err != nil {
		return nil, err
	}
	tok := p.Token()
	// read before the swap: the bootstrap exception applies to the pool as the buyer found it
	pristine := p.Pristine()

	var outLedger domain.Ledger
	if q.Side == domain.TradeSideBuy {
		outLedger = tok
		if err := r.base.TransferFrom(r.cfg.Address, caller, p.Address(), q.AmountIn); err != nil {
			return nil, err
		}
		tokenOut, _, err := p.ExecuteSwap(r.cfg.Address, nil, q.AmountIn, q.GrossOut, nil, r.cfg.Address)
		if err != nil {
			return nil, err
		}
		q.GrossOut = tokenOut
	} else {
		outLedger = r.base
		if err := tok.TransferFrom(r.cfg.Address, caller, p.Address(), q.AmountIn); err != nil {
			return nil, err
		}
		_, baseOut, err := p.ExecuteSwap(r.cfg.Address, q.AmountIn, nil, nil, q.GrossOut, r.cfg.Address)
		if err != nil {
			return nil, err
		}
		q.GrossOut = baseOut
	}

	receipt := &TradeReceipt{
		Quote:     q,
		TradeID:   uuid.NewString(),
		Pool:      p.Address(),
		Trader:    caller,
		Recipient: recipient,
		ExactOut:  exactOut,
	}
	if err := r.settle(receipt, outLedger); err != nil {
		return nil, err
	}

	if q.Side == domain.TradeSideBuy && !pristine {
		if err := r.checkMaxHold(tok, recipient); err != nil {
			return nil, err
		}
	}

	r.recordTrade(receipt, p)
	return receipt, nil
}

// settle forwards the net output to the recipient and distributes the tax
func (r *Router) settle(receipt *TradeReceipt, out domain.Ledger) error {
	tax, net := applyTax(receipt.GrossOut, r.policy.TaxFor(receipt.Side))
	receipt.Tax, receipt.NetOut = tax, net
	receipt.CreatorTax, receipt.PlatformTax = splitTax(tax)

	creator := r.cfg.Treasury
	if r.hook != nil {
		if c, ok := r.hook.Creator(receipt.Token); ok && c != (common.Address{}) {
			creator = c
		}
	}

	if err := out.Transfer(r.cfg.Address, receipt.Recipient, net); err != nil {
		return err
	}
	if err := out.Transfer(r.cfg.Address, creator, receipt.CreatorTax); err != nil {
		return err
	}
	if err := out.Transfer(r.cfg.Address, r.cfg.Treasury, receipt.PlatformTax); err != nil {
		return err
	}

	if tax.Sign() > 0 {
		data := &events.TaxCollectedData{
			TradeID:        receipt.TradeID,
			Token:          receipt.Token.Hex(),
			Side:           string(receipt.Side),
			Asset:          out.Address().Hex(),
			Total:          tax.String(),
			Creator:        creator.Hex(),
			CreatorAmount:  receipt.CreatorTax.String(),
			Treasury:       r.cfg.Treasury.Hex(),
			TreasuryAmount: receipt.PlatformTax.String(),
		}
		r.journal.OnCommit(func() { r.emit(events.TaxCollected, data) })
	}
	return nil
}

func (r *Router) checkMaxHold(tok domain.Ledger, recipient common.Address) error {
	limit := domain.Bps(tok.TotalSupply(), r.policy.MaxHoldBps)
	if held := tok.BalanceOf(recipient); held.Cmp(limit) > 0 {
		return domain.Errorf(domain.ErrMaxHoldExceeded, "%s would hold %s of %s (limit %s)",
			recipient.Hex(), held, tok.Symbol(), limit)
	}
	return nil
}

func (r *Router) recordTrade(receipt *TradeReceipt, p *pool.Pool) {
	data := &events.TradeExecutedData{
		TradeID:   receipt.TradeID,
		Token:     receipt.Token.Hex(),
		Pool:      receipt.Pool.Hex(),
		Trader:    receipt.Trader.Hex(),
		Recipient: receipt.Recipient.Hex(),
		Side:      string(receipt.Side),
		ExactOut:  receipt.ExactOut,
		AmountIn:  receipt.AmountIn.String(),
		GrossOut:  receipt.GrossOut.String(),
		Tax:       receipt.Tax.String(),
		NetOut:    receipt.NetOut.String(),
		SpotPrice: p.SpotPrice().FloatString(18),
	}
	r.journal.OnCommit(func() { r.emit(events.TradeExecuted, data) })

	r.log.Debug().
		Str("trade_id", receipt.TradeID).
		Str("side", string(receipt.Side)).
		Str("token", receipt.Token.Hex()).
		Str("amount_in", receipt.AmountIn.String()).
		Str("net_out", receipt.NetOut.String()).
		Str("tax", receipt.Tax.String()).
		Msg("Trade settled")
}

// afterTrade runs the graduation check outside the router guard
func (r *Router) afterTrade(receipt *TradeReceipt) (*TradeReceipt, error) {
	if r.hook == nil {
		return receipt, nil
	}
	graduated, err := r.hook.TryGraduate(r.cfg.Address, receipt.Token)
	if err != nil {
		return nil, err
	}
	receipt.Graduated = graduated
	return receipt, nil
}

// AddInitialLiquidity seeds token's pool from the launcher's balances. A non-zero
// baseAmount buys the first tokens for firstBuyer. The bootstrap buy is exempt
// from tax and max-hold; the launcher caps it instead.
func (r *Router) AddInitialLiquidity(caller, tokenAddr common.Address, tokenAmount, baseAmount *big.Int, firstBuyer common.Address) (*TradeReceipt, error) {
	if caller != r.cfg.Launcher {
		return nil, domain.Errorf(domain.ErrUnauthorized, "add initial liquidity by %s", caller.Hex())
	}
	release, err := r.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	p, ok := r.pools[tokenAddr]
	if !ok {
		return nil, domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", tokenAddr.Hex())
	}
	if err := p.Token().TransferFrom(r.cfg.Address, caller, p.Address(), tokenAmount); err != nil {
		return nil, err
	}
	if domain.IsPositive(baseAmount) {
		if firstBuyer == (common.Address{}) {
			return nil, domain.Errorf(domain.ErrZeroAddress, "first buyer")
		}
		if err := r.base.TransferFrom(r.cfg.Address, caller, p.Address(), baseAmount); err != nil {
			return nil, err
		}
	}

	tokenOut, err := p.Seed(r.cfg.Address, tokenAmount, baseAmount, firstBuyer)
	if err != nil {
		return nil, err
	}
	if tokenOut.Sign() == 0 {
		return nil, nil
	}

	receipt := &TradeReceipt{
		Quote: Quote{
			Side:     domain.TradeSideBuy,
			Token:    tokenAddr,
			AmountIn: new(big.Int).Set(baseAmount),
			GrossOut: tokenOut,
			Tax:      new(big.Int),
			NetOut:   new(big.Int).Set(tokenOut),
		},
		TradeID:     uuid.NewString(),
		Pool:        p.Address(),
		Trader:      caller,
		Recipient:   firstBuyer,
		CreatorTax:  new(big.Int),
		PlatformTax: new(big.Int),
	}
	r.recordTrade(receipt, p)
	return receipt, nil
}

// TransferLiquidityToManager sweeps token's bonding pool to `to`. Coordinator only.
func (r *Router) TransferLiquidityToManager(caller, tokenAddr, to common.Address) (tokenAmount, baseAmount *big.Int, err error) {
	if caller != r.cfg.Coordinator {
		return nil, nil, domain.Errorf(domain.ErrUnauthorized, "sweep by %s", caller.Hex())
	}
	release, err := r.guard.Enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	p, ok := r.pools[tokenAddr]
	if !ok {
		return nil, nil, domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", tokenAddr.Hex())
	}
	return p.Sweep(r.cfg.Address, to)
}

// SyncPool resets token's reserves to its pool's ledger balances. Admin only.
func (r *Router) SyncPool(caller, tokenAddr common.Address) (pool.ReserveState, error) {
	if caller != r.cfg.Admin {
		return pool.ReserveState{}, domain.Errorf(domain.ErrUnauthorized, "sync by %s", caller.Hex())
	}
	release, err := r.guard.Enter()
	if err != nil {
		return pool.ReserveState{}, err
	}
	defer release()

	p, ok := r.pools[tokenAddr]
	if !ok {
		return pool.ReserveState{}, domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", tokenAddr.Hex())
	}
	return p.Sync(r.cfg.Address)
}

func (r *Router) emit(t events.EventType, data events.EventData) {
	if r.emitter != nil {
		r.emitter.EmitTyped(t, "trading", data)
	}
}
