// Package pool implements the reserve pool: the two-sided bonding reserve for one
// launched token against the base asset.
package pool

import (
	"math/big"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ReserveState is the pool's stored reserve
type ReserveState struct {
	ReserveToken   *big.Int
	ReserveBase    *big.Int
	LastUpdateTime time.Time
}

func (s ReserveState) copy() ReserveState {
	return ReserveState{
		ReserveToken:   domain.Copy(s.ReserveToken),
		ReserveBase:    domain.Copy(s.ReserveBase),
		LastUpdateTime: s.LastUpdateTime,
	}
}

func (s ReserveState) curveReserves() curve.Reserves {
	return curve.Reserves{Token: domain.Copy(s.ReserveToken), Base: domain.Copy(s.ReserveBase)}
}

// Config wires a pool to its ledgers, curve and privileged caller
type Config struct {
	Address common.Address
	Token   domain.GraduatableLedger
	Base    domain.Ledger
	Curve   curve.Curve
	// Router is the only address allowed to call the mutators
	Router common.Address
}

// Pool is the bonding reserve for one token
type Pool struct {
	journal *state.Journal
	clock   domain.Clock
	emitter events.Emitter
	log     zerolog.Logger
	guard   state.Guard

	address common.Address
	token   domain.GraduatableLedger
	base    domain.Ledger
	curve   curve.Curve
	router  common.Address

	reserves    ReserveState
	seeded      bool
	seededToken *big.Int
	swept       bool
}

// New creates an unseeded pool
func New(journal *state.Journal, clock domain.Clock, emitter events.Emitter, cfg Config, log zerolog.Logger) (*Pool, error) {
	if cfg.Address == (common.Address{}) || cfg.Router == (common.Address{}) {
		return nil, domain.Errorf(domain.ErrZeroAddress, "pool address and router are required")
	}
	if cfg.Token == nil || cfg.Base == nil || cfg.Curve == nil {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "pool needs both ledgers and a curve")
	}
	return &Pool{
		journal: journal,
		clock:   clock,
		emitter: emitter,
		log: log.With().
			Str("component", "reserve_pool").
			Str("pool", cfg.Address.Hex()).
			Str("token", cfg.Token.Symbol()).
			Logger(),
		address:  cfg.Address,
		token:    cfg.Token,
		base:     cfg.Base,
		curve:    cfg.Curve,
		router:   cfg.Router,
		reserves: ReserveState{ReserveToken: new(big.Int), ReserveBase: new(big.Int)},
	}, nil
}

func (p *Pool) Address() common.Address         { return p.address }
func (p *Pool) Token() domain.GraduatableLedger { return p.token }
func (p *Pool) Base() domain.Ledger             { return p.base }
func (p *Pool) Curve() curve.Curve              { return p.curve }
func (p *Pool) Router() common.Address          { return p.router }
func (p *Pool) Seeded() bool                    { return p.seeded }
func (p *Pool) Swept() bool                     { return p.swept }

// Snapshot returns a copy of the stored reserves
func (p *Pool) Snapshot() ReserveState {
	return p.reserves.copy()
}

// Pristine reports whether no token has left the pool since seeding
func (p *Pool) Pristine() bool {
	return p.seeded && p.seededToken != nil && p.reserves.ReserveToken.Cmp(p.seededToken) == 0
}

// SpotPrice is the marginal base-per-token price at the stored reserves
func (p *Pool) SpotPrice() *big.Rat {
	return p.curve.SpotPrice(p.reserves.curveReserves())
}

// Balances reads what the pool actually holds on both ledgers
func (p *Pool) Balances() (tokenBalance, baseBalance *big.Int) {
	return p.token.BalanceOf(p.address), p.base.BalanceOf(p.address)
}

func (p *Pool) tradable() error {
	if p.swept || p.token.Graduated() {
		return domain.Errorf(domain.ErrAlreadyGraduated, "pool %s is frozen", p.address.Hex())
	}
	if !p.seeded {
		return domain.Errorf(domain.ErrUninitialized, "pool %s is not seeded", p.address.Hex())
	}
	return nil
}

// QuoteTokenOut returns the tokens a buy of baseIn would receive
func (p *Pool) QuoteTokenOut(baseIn *big.Int) (*big.Int, error) {
	if err := p.tradable(); err != nil {
		return nil, err
	}
	return p.curve.TokenOut(p.reserves.curveReserves(), baseIn)
}

// QuoteBaseOut returns the base a sell of tokenIn would receive
func (p *Pool) QuoteBaseOut(tokenIn *big.Int) (*big.Int, error) {
	if err := p.tradable(); err != nil {
		return nil, err
	}
	return p.curve.BaseOut(p.reserves.curveReserves(), tokenIn)
}

// QuoteBaseIn returns the base needed to buy at least tokenOut
func (p *Pool) QuoteBaseIn(tokenOut *big.Int) (*big.Int, error) {
	if err := p.tradable(); err != nil {
		return nil, err
	}
	return p.curve.BaseIn(p.reserves.curveReserves(), tokenOut)
}

// QuoteTokenIn returns the tokens needed to sell for at least baseOut
func (p *Pool) QuoteTokenIn(baseOut *big.Int) (*big.Int, error) {
	if err := p.tradable(); err != nil {
		return nil, err
	}
	return p.curve.TokenIn(p.reserves.curveReserves(), baseOut)
}

func (p *Pool) authorize(caller common.Address, op string) error {
	if caller != p.router {
		return domain.Errorf(domain.ErrUnauthorized, "%s on pool %s by %s", op, p.address.Hex(), caller.Hex())
	}
	return nil
}

// ExecuteSwap trades against the curve. Exactly one of tokenIn and baseIn is non-zero.
// The router moves the input into the pool before calling; the pool checks it arrived,
// commits the new reserves and only then pays out.
func (p *Pool) ExecuteSwap(caller common.Address, tokenIn, baseIn, minTokenOut, minBaseOut *big.Int, to common.Address) (tokenOut, baseOut *big.Int, err error) {
	if err := p.authorize(caller, "swap"); err != nil {
		return nil, nil, err
	}
	release, err := p.guard.Enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	if err := p.tradable(); err != nil {
		return nil, nil, err
	}
	if to == (common.Address{}) {
		return nil, nil, domain.Errorf(domain.ErrZeroAddress, "swap recipient")
	}
	selling := domain.IsPositive(tokenIn)
	buying := domain.IsPositive(baseIn)
	if selling == buying {
		return nil, nil, domain.ErrAmbiguousSwap
	}

	before := p.reserves.copy()
	after := before.copy()
	tokenOut, baseOut = new(big.Int), new(big.Int)

	if buying {
		tokenOut, err = p.curve.TokenOut(before.curveReserves(), baseIn)
		if err != nil {
			return nil, nil, err
		}
		if tokenOut.Sign() == 0 || tokenOut.Cmp(domain.Copy(minTokenOut)) < 0 {
			return nil, nil, domain.Errorf(domain.ErrInsufficientOutput, "token out %s below minimum %s", tokenOut, domain.Copy(minTokenOut))
		}
		after.ReserveToken.Sub(after.ReserveToken, tokenOut)
		after.ReserveBase.Add(after.ReserveBase, baseIn)
	} else {
		baseOut, err = p.curve.BaseOut(before.curveReserves(), tokenIn)
		if err != nil {
			return nil, nil, err
		}
		if baseOut.Sign() == 0 || baseOut.Cmp(domain.Copy(minBaseOut)) < 0 {
			return nil, nil, domain.Errorf(domain.ErrInsufficientOutput, "base out %s below minimum %s", baseOut, domain.Copy(minBaseOut))
		}
		after.ReserveToken.Add(after.ReserveToken, tokenIn)
		after.ReserveBase.Sub(after.ReserveBase, baseOut)
	}

	if err := p.curve.Verify(before.curveReserves(), after.curveReserves()); err != nil {
		return nil, nil, err
	}
	if err := p.checkFunded(after, tokenOut, baseOut); err != nil {
		return nil, nil, err
	}

	after.LastUpdateTime = p.clock.Now()
	p.setReserves(after, "swap")

	if buying {
		err = p.token.Transfer(p.address, to, tokenOut)
	} else {
		err = p.base.Transfer(p.address, to, baseOut)
	}
	if err != nil {
		return nil, nil, err
	}

	p.log.Debug().
		Bool("buy", buying).
		Str("token_out", tokenOut.String()).
		Str("base_out", baseOut.String()).
		Str("reserve_token", after.ReserveToken.String()).
		Str("reserve_base", after.ReserveBase.String()).
		Msg("Swap executed")

	return tokenOut, baseOut, nil
}

// checkFunded ensures the ledgers hold the new reserves plus what is about to be paid out
func (p *Pool) checkFunded(after ReserveState, tokenOut, baseOut *big.Int) error {
	tokenBal, baseBal := p.Balances()
	needToken := new(big.Int).Add(after.ReserveToken, tokenOut)
	needBase := new(big.Int).Add(after.ReserveBase, baseOut)
	if tokenBal.Cmp(needToken) < 0 || baseBal.Cmp(needBase) < 0 {
		return domain.Errorf(domain.ErrInsufficientBalance,
			"pool holds %s token / %s base, reserves need %s / %s", tokenBal, baseBal, needToken, needBase)
	}
	return nil
}

// Seed sets the initial reserves from tokens already transferred to the pool.
// A non-zero baseAmount buys the first tokens through the zero-base bootstrap
// branch and they are paid to firstBuyer, who must then be set.
func (p *Pool) Seed(caller common.Address, tokenAmount, baseAmount *big.Int, firstBuyer common.Address) (*big.Int, error) {
	if err := p.authorize(caller, "seed"); err != nil {
		return nil, err
	}
	release, err := p.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if p.seeded {
		return nil, domain.Errorf(domain.ErrAlreadySeeded, "pool %s", p.address.Hex())
	}
	if p.swept || p.token.Graduated() {
		return nil, domain.ErrAlreadyGraduated
	}
	if !domain.IsPositive(tokenAmount) {
		return nil, domain.Errorf(domain.ErrZeroAmount, "seed token amount")
	}
	baseAmount = domain.Copy(baseAmount)

	before := p.reserves.copy()
	after := ReserveState{
		ReserveToken: new(big.Int).Set(tokenAmount),
		ReserveBase:  new(big.Int),
	}
	tokenOut := new(big.Int)

	if baseAmount.Sign() > 0 {
		if firstBuyer == (common.Address{}) {
			return nil, domain.Errorf(domain.ErrZeroAddress, "first buyer for a seed with base")
		}
		tokenOut, err = p.curve.TokenOut(after.curveReserves(), baseAmount)
		if err != nil {
			return nil, err
		}
		if tokenOut.Sign() == 0 {
			return nil, domain.Errorf(domain.ErrInsufficientOutput, "first buy of %s yields nothing", baseAmount)
		}
		after.ReserveToken.Sub(after.ReserveToken, tokenOut)
		after.ReserveBase.Set(baseAmount)
	}
	if err := p.checkFunded(after, tokenOut, domain.Big0); err != nil {
		return nil, err
	}

	after.LastUpdateTime = p.clock.Now()
	p.setSeeded(tokenAmount)
	p.setReserves(after, "seed")

	if tokenOut.Sign() > 0 {
		if err := p.token.Transfer(p.address, firstBuyer, tokenOut); err != nil {
			return nil, err
		}
	}

	p.log.Info().
		Str("seed_token", tokenAmount.String()).
		Str("seed_base", baseAmount.String()).
		Str("first_buy_out", tokenOut.String()).
		Str("reserve_token_before", before.ReserveToken.String()).
		Msg("Pool seeded")

	return tokenOut, nil
}

// Sweep moves the pool's full balances to `to` and freezes it. Reserves are left as
// they were; the pool never trades again.
func (p *Pool) Sweep(caller, to common.Address) (tokenAmount, baseAmount *big.Int, err error) {
	if err := p.authorize(caller, "sweep"); err != nil {
		return nil, nil, err
	}
	release, err := p.guard.Enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	if p.swept {
		return nil, nil, domain.Errorf(domain.ErrAlreadyGraduated, "pool %s already swept", p.address.Hex())
	}
	if to == (common.Address{}) {
		return nil, nil, domain.Errorf(domain.ErrZeroAddress, "sweep recipient")
	}

	tokenAmount, baseAmount = p.Balances()
	p.swept = true
	p.journal.Record(func() { p.swept = false })

	if err := p.token.Transfer(p.address, to, tokenAmount); err != nil {
		return nil, nil, err
	}
	if err := p.base.Transfer(p.address, to, baseAmount); err != nil {
		return nil, nil, err
	}

	p.log.Info().
		Str("to", to.Hex()).
		Str("token", tokenAmount.String()).
		Str("base", baseAmount.String()).
		Msg("Pool swept")

	return tokenAmount, baseAmount, nil
}

// Sync sets the reserves to the pool's actual ledger balances
func (p *Pool) Sync(caller common.Address) (ReserveState, error) {
	if err := p.authorize(caller, "sync"); err != nil {
		return ReserveState{}, err
	}
	release, err := p.guard.Enter()
	if err != nil {
		return ReserveState{}, err
	}
	defer release()

	if err := p.tradable(); err != nil {
		return ReserveState{}, err
	}

	tokenBal, baseBal := p.Balances()
	after := ReserveState{ReserveToken: tokenBal, ReserveBase: baseBal, LastUpdateTime: p.clock.Now()}
	p.setReserves(after, "sync")
	return after.copy(), nil
}

func (p *Pool) setSeeded(tokenAmount *big.Int) {
	prevSeeded, prevToken := p.seeded, p.seededToken
	p.seeded = true
	p.seededToken = new(big.Int).Set(tokenAmount)
	p.journal.Record(func() {
		p.seeded = prevSeeded
		p.seededToken = prevToken
	})
}

func (p *Pool) setReserves(next ReserveState, reason string) {
	prev := p.reserves
	p.reserves = next.copy()
	p.journal.Record(func() { p.reserves = prev })

	if p.emitter == nil {
		return
	}
	data := &events.ReserveUpdatedData{
		Token:       p.token.Address().Hex(),
		Pool:        p.address.Hex(),
		Reason:      reason,
		TokenBefore: prev.ReserveToken.String(),
		BaseBefore:  prev.ReserveBase.String(),
		TokenAfter:  next.ReserveToken.String(),
		BaseAfter:   next.ReserveBase.String(),
	}
	p.journal.OnCommit(func() {
		p.emitter.EmitTyped(events.ReserveUpdated, "pool", data)
	})
}
