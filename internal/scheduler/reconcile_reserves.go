package scheduler

import (
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// PoolSource lists bonding pools and resyncs their reserves
type PoolSource interface {
	Pools() []*pool.Pool
	SyncPool(caller, token common.Address) (pool.ReserveState, error)
}

// ReconcileReservesJob compares each live pool's stored reserves with its ledger
// balances. Pools quote from stored reserves, so tokens sent straight to a pool
// sit outside the curve until an admin sync absorbs them.
type ReconcileReservesJob struct {
	log     zerolog.Logger
	host    *state.Host
	pools   PoolSource
	emitter events.Emitter
	admin   common.Address
	// autoSync absorbs drift immediately instead of only reporting it
	autoSync bool
}

// NewReconcileReservesJob creates a new ReconcileReservesJob
func NewReconcileReservesJob(host *state.Host, pools PoolSource, emitter events.Emitter, admin common.Address, autoSync bool, log zerolog.Logger) *ReconcileReservesJob {
	return &ReconcileReservesJob{
		log:      log.With().Str("job", "reconcile_reserves").Logger(),
		host:     host,
		pools:    pools,
		emitter:  emitter,
		admin:    admin,
		autoSync: autoSync,
	}
}

// Name returns the job name
func (j *ReconcileReservesJob) Name() string {
	return "reconcile_reserves"
}

// Run executes the reconcile reserves job
func (j *ReconcileReservesJob) Run() error {
	var drifted []*events.ReserveDriftData
	err := j.host.Execute(func() error {
		for _, p := range j.pools.Pools() {
			if !p.Seeded() || p.Swept() {
				continue
			}
			stored := p.Snapshot()
			tokenBal, baseBal := p.Balances()
			if stored.ReserveToken.Cmp(tokenBal) == 0 && stored.ReserveBase.Cmp(baseBal) == 0 {
				continue
			}
			drifted = append(drifted, &events.ReserveDriftData{
				Token:        p.Token().Address().Hex(),
				Pool:         p.Address().Hex(),
				StoredToken:  stored.ReserveToken.String(),
				StoredBase:   stored.ReserveBase.String(),
				BalanceToken: tokenBal.String(),
				BalanceBase:  baseBal.String(),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	synced := 0
	for _, d := range drifted {
		if j.autoSync {
			token := common.HexToAddress(d.Token)
			err := j.host.Execute(func() error {
				_, err := j.pools.SyncPool(j.admin, token)
				return err
			})
			if err != nil {
				j.log.Error().Err(err).Str("token", d.Token).Msg("Failed to sync drifted pool")
			} else {
				d.Synced = true
				synced++
			}
		}
		j.log.Warn().
			Str("token", d.Token).
			Str("stored_token", d.StoredToken).
			Str("balance_token", d.BalanceToken).
			Str("stored_base", d.StoredBase).
			Str("balance_base", d.BalanceBase).
			Bool("synced", d.Synced).
			Msg("Reserve drift detected")
		if j.emitter != nil {
			j.emitter.EmitTyped(events.ReserveDriftDetected, "scheduler", d)
		}
	}

	j.log.Info().
		Int("drifted", len(drifted)).
		Int("synced", synced).
		Msg("Reserve reconciliation completed")
	return nil
}
