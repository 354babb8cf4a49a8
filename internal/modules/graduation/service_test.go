package graduation

import (
	"testing"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraduationService_TokenViews(t *testing.T) {
	f := newFixture(t, threeVenues)
	svc := NewGraduationService(f.host, f.coord, f.router, nil, nil, zerolog.Nop())

	view, err := svc.GetToken(tokenAddr)
	require.NoError(t, err)
	assert.True(t, view.Seeded)
	assert.Equal(t, uint64(10000), view.RatioBps)
	assert.Equal(t, uint64(9000), view.ThresholdBps)
	assert.False(t, view.Ready)
	assert.Equal(t, domain.E18(1_000_000).String(), view.Reserves.ReserveToken.String())

	_, err = svc.GetToken(common.HexToAddress("0x1002"))
	assert.ErrorIs(t, err, domain.ErrNotRegistered)

	_, err = f.buy(domain.E18(5_000))
	require.NoError(t, err)

	graduated, err := svc.ListTokens(domain.StatusGraduated)
	require.NoError(t, err)
	require.Len(t, graduated, 1)
	assert.Equal(t, tokenAddr, graduated[0].Profile.Token)
	assert.False(t, graduated[0].Ready, "a graduated token is never ready again")

	bonding, err := svc.ListTokens(domain.StatusBonding)
	require.NoError(t, err)
	assert.Empty(t, bonding)

	_, err = svc.GetHistory("", 10)
	assert.Error(t, err, "history needs a repository")
}

func TestGraduationService_AdminChangesAreAtomic(t *testing.T) {
	f := newFixture(t, threeVenues)
	svc := NewGraduationService(f.host, f.coord, f.router, nil, nil, zerolog.Nop())

	assert.ErrorIs(t, svc.SetThreshold(trader, 8000), domain.ErrUnauthorized)
	assert.ErrorIs(t, svc.SetThreshold(admin, 0), domain.ErrPercentageOverCap)
	require.NoError(t, svc.SetThreshold(admin, 9500))
	assert.Equal(t, uint64(9500), svc.Threshold())

	bad := []domain.DexConfig{{VenueRef: classicAddr, VenueKind: domain.VenueSolidlyAMM, WeightBps: 10000}}
	assert.ErrorIs(t, svc.SetDexConfigs(admin, tokenAddr, bad), domain.ErrVenueKindMismatch)

	single := []domain.DexConfig{{VenueRef: classicAddr, VenueKind: domain.VenueClassicAMM, WeightBps: 10000}}
	require.NoError(t, svc.SetDexConfigs(admin, tokenAddr, single))
	view, err := svc.GetToken(tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, single, view.Profile.DexConfigs)
}
