package venues

import (
	"sort"
	"sync"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Registry resolves a dex config's venue reference to its adapter
type Registry struct {
	mu       sync.RWMutex
	adapters map[common.Address]Adapter
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[common.Address]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter under its address
func (r *Registry) Register(a Adapter) error {
	if a == nil || a.Address() == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "venue adapter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Address()]; exists {
		return domain.Errorf(domain.ErrAlreadyRegistered, "venue %s", a.Address().Hex())
	}
	r.adapters[a.Address()] = a
	return nil
}

// Get returns the adapter at ref
func (r *Registry) Get(ref common.Address) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ref]
	if !ok {
		return nil, domain.Errorf(domain.ErrUnknownVenue, "%s", ref.Hex())
	}
	return a, nil
}

// Resolve returns the adapter for a dex config and checks its kind
func (r *Registry) Resolve(cfg domain.DexConfig) (Adapter, error) {
	a, err := r.Get(cfg.VenueRef)
	if err != nil {
		return nil, err
	}
	if a.Kind() != cfg.VenueKind {
		return nil, domain.Errorf(domain.ErrVenueKindMismatch, "%s is %s, config says %s", cfg.VenueRef.Hex(), a.Kind(), cfg.VenueKind)
	}
	return a, nil
}

// CheckConfigs validates weights and that every config resolves to a matching adapter
func (r *Registry) CheckConfigs(configs []domain.DexConfig) error {
	if err := domain.ValidateDexConfigs(configs); err != nil {
		return err
	}
	for _, cfg := range configs {
		a, err := r.Resolve(cfg)
		if err != nil {
			return err
		}
		if cfg.VenueKind == domain.VenueConcentratedAMM {
			if _, ok := TickSpacing(cfg.FeeTier); !ok {
				return domain.Errorf(domain.ErrInvalidParameter, "fee tier %d is not enabled on %s", cfg.FeeTier, a.Address().Hex())
			}
		}
	}
	return nil
}

// All returns every adapter sorted by address
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Cmp(out[j].Address()) < 0
	})
	return out
}

// FindPool looks a pool address up across every venue
func (r *Registry) FindPool(addr common.Address) (PoolInfo, bool) {
	for _, a := range r.All() {
		if info, ok := a.Pool(addr); ok {
			return info, true
		}
	}
	return PoolInfo{}, false
}
