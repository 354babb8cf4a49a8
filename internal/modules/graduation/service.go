package graduation

import (
	"fmt"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// TokenView is a launched token as seen from outside the engine
type TokenView struct {
	Profile      AgentProfile      `json:"profile"`
	Reserves     pool.ReserveState `json:"reserves"`
	Seeded       bool              `json:"seeded"`
	RatioBps     uint64            `json:"ratio_bps"`
	ThresholdBps uint64            `json:"threshold_bps"`
	Ready        bool              `json:"ready"`
}

// GraduationService is the host-serialized entry point to the coordinator.
//
// Responsibilities:
//   - Serve live token views with reserves and eligibility
//   - Apply admin threshold and venue config changes
//   - Serve persisted profile history
type GraduationService struct {
	log          zerolog.Logger
	host         *state.Host
	coordinator  *Coordinator
	router       LiquiditySource
	profileRepo  ProfileRepositoryInterface
	eventManager *events.Manager
}

// NewGraduationService creates a new graduation service
func NewGraduationService(
	host *state.Host,
	coordinator *Coordinator,
	router LiquiditySource,
	profileRepo ProfileRepositoryInterface,
	eventManager *events.Manager,
	log zerolog.Logger,
) *GraduationService {
	return &GraduationService{
		log:          log.With().Str("service", "graduation_api").Logger(),
		host:         host,
		coordinator:  coordinator,
		router:       router,
		profileRepo:  profileRepo,
		eventManager: eventManager,
	}
}

// GetToken returns the live view of one token
func (s *GraduationService) GetToken(token common.Address) (*TokenView, error) {
	var view *TokenView
	err := s.host.Execute(func() error {
		var err error
		view, err = s.tokenView(token)
		return err
	})
	return view, err
}

// ListTokens returns live views of every token, optionally filtered by status
func (s *GraduationService) ListTokens(status domain.GraduationStatus) ([]TokenView, error) {
	var out []TokenView
	err := s.host.Execute(func() error {
		out = make([]TokenView, 0)
		for _, p := range s.coordinator.Profiles() {
			if status != "" && p.Status != status {
				continue
			}
			view, err := s.tokenView(p.Token)
			if err != nil {
				return err
			}
			out = append(out, *view)
		}
		return nil
	})
	return out, err
}

func (s *GraduationService) tokenView(token common.Address) (*TokenView, error) {
	profile, ok := s.coordinator.Profile(token)
	if !ok {
		return nil, domain.Errorf(domain.ErrNotRegistered, "token %s", token.Hex())
	}
	view := &TokenView{Profile: profile, ThresholdBps: s.coordinator.Threshold()}
	if p, ok := s.router.Pool(token); ok {
		view.Reserves = p.Snapshot()
		view.Seeded = p.Seeded()
	}
	ready, ratio, err := s.coordinator.CheckGraduation(token)
	if err != nil {
		return nil, err
	}
	view.Ready, view.RatioBps = ready, ratio
	return view, nil
}

// SetThreshold changes the graduation threshold on behalf of caller
func (s *GraduationService) SetThreshold(caller common.Address, bps uint64) error {
	err := s.host.Execute(func() error {
		return s.coordinator.SetThreshold(caller, bps)
	})
	if err != nil {
		s.emitError(err, map[string]interface{}{"caller": caller.Hex(), "threshold_bps": bps})
		return err
	}
	s.log.Info().Uint64("threshold_bps", bps).Msg("Graduation threshold updated")
	return nil
}

// SetDexConfigs replaces a bonding token's venue configs on behalf of caller
func (s *GraduationService) SetDexConfigs(caller, token common.Address, configs []domain.DexConfig) error {
	err := s.host.Execute(func() error {
		return s.coordinator.SetDexConfigs(caller, token, configs)
	})
	if err != nil {
		s.emitError(err, map[string]interface{}{"caller": caller.Hex(), "token": token.Hex()})
		return err
	}
	s.log.Info().Str("token", token.Hex()).Int("venues", len(configs)).Msg("Venue configs updated")
	return nil
}

// Threshold returns the current graduation threshold
func (s *GraduationService) Threshold() uint64 {
	var bps uint64
	_ = s.host.Execute(func() error {
		bps = s.coordinator.Threshold()
		return nil
	})
	return bps
}

// GetHistory returns persisted profiles, newest first
func (s *GraduationService) GetHistory(status domain.GraduationStatus, limit int) ([]ProfileRecord, error) {
	if s.profileRepo == nil {
		return nil, fmt.Errorf("profile repository not available")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.profileRepo.List(status, limit)
}

// GetStats counts persisted profiles per status
func (s *GraduationService) GetStats() (map[domain.GraduationStatus]int, error) {
	if s.profileRepo == nil {
		return nil, fmt.Errorf("profile repository not available")
	}
	return s.profileRepo.CountByStatus()
}

func (s *GraduationService) emitError(err error, context map[string]interface{}) {
	if s.eventManager == nil {
		return
	}
	s.eventManager.EmitError("graduation", err, context)
}
