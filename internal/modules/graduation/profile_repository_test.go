package graduation

import (
	"testing"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	testingpkg "github.com/aristath/launchpad/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfileRepo(t *testing.T) *ProfileRepository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	return NewProfileRepository(db.Conn(), testingpkg.NewTestLogger())
}

func TestProfileRepository_RegisterValidatesAndIgnoresDuplicates(t *testing.T) {
	repo := newTestProfileRepo(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Error(t, repo.Register(ProfileRecord{Token: "0x1001"}))

	rec := ProfileRecord{
		Token:        "0xAbC0000000000000000000000000000000001001",
		Pool:         "0x5001",
		Creator:      "0xc001",
		Metadata:     "ipfs://agent",
		DexConfigs:   []events.DexConfigData{{VenueRef: "0xd001", VenueKind: "classic_amm", WeightBps: 10000}},
		RegisteredAt: at,
	}
	require.NoError(t, repo.Register(rec))
	rec.Metadata = "ignored"
	require.NoError(t, repo.Register(rec))

	got, err := repo.GetByToken("0xabc0000000000000000000000000000000001001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ipfs://agent", got.Metadata)
	assert.Equal(t, domain.StatusBonding, got.Status)
	assert.True(t, at.Equal(got.RegisteredAt))
	assert.Nil(t, got.GraduatedAt)
	assert.Equal(t, "0", got.PulledBase.String())
	require.Len(t, got.DexConfigs, 1)
	assert.Equal(t, uint32(10000), got.DexConfigs[0].WeightBps)
	assert.Empty(t, got.Venues)

	missing, err := repo.GetByToken("0x9999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfileRepository_MarkGraduatedAndCounts(t *testing.T) {
	repo := newTestProfileRepo(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Register(ProfileRecord{Token: "0x1001", Pool: "0x5001", Creator: "0xc001", RegisteredAt: at}))
	require.NoError(t, repo.Register(ProfileRecord{Token: "0x1002", Pool: "0x5002", Creator: "0xc001", RegisteredAt: at.Add(time.Minute)}))

	err := repo.MarkGraduated("0x1001", at.Add(time.Hour), &events.TokenGraduatedData{
		Token:         "0x1001",
		RatioBps:      8995,
		PulledToken:   "899500000000000000000000000",
		PulledBase:    "5000000000000000000000",
		MainVenuePool: "0xD00D",
		Venues:        []events.VenueDeploymentData{{VenueRef: "0xd001", Pool: "0xd00d", WeightBps: 10000}},
	})
	require.NoError(t, err)
	assert.Error(t, repo.MarkGraduated("0x9999", at, &events.TokenGraduatedData{}))

	got, err := repo.GetByToken("0x1001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusGraduated, got.Status)
	require.NotNil(t, got.GraduatedAt)
	assert.True(t, at.Add(time.Hour).Equal(*got.GraduatedAt))
	assert.Equal(t, uint64(8995), got.RatioBps)
	assert.Equal(t, "899500000000000000000000000", got.PulledToken.String())
	assert.Equal(t, "0xd00d", got.MainVenuePool)
	require.Len(t, got.Venues, 1)

	graduated, err := repo.List(domain.StatusGraduated, 10)
	require.NoError(t, err)
	require.Len(t, graduated, 1)
	assert.Equal(t, "0x1001", graduated[0].Token)

	all, err := repo.List("", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0x1002", all[0].Token, "newest first")

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusBonding])
	assert.Equal(t, 1, counts[domain.StatusGraduated])
}

func TestProfileRepository_AttachFollowsTheBus(t *testing.T) {
	repo := newTestProfileRepo(t)
	bus := events.NewBus(testingpkg.NewTestLogger())
	manager := events.NewManager(bus, testingpkg.NewTestLogger())
	detach := repo.Attach(bus)

	manager.EmitTyped(events.TokenRegistered, "graduation", &events.TokenRegisteredData{
		Token: "0x1001", Pool: "0x5001", Creator: "0xc001",
		DexConfigs: []events.DexConfigData{{VenueRef: "0xd001", VenueKind: "classic_amm", WeightBps: 10000}},
	})
	manager.EmitTyped(events.DexConfigsUpdated, "graduation", &events.DexConfigsUpdatedData{
		Token: "0x1001",
		After: []events.DexConfigData{
			{VenueRef: "0xd001", VenueKind: "classic_amm", WeightBps: 6000},
			{VenueRef: "0xd003", VenueKind: "solidly_amm", WeightBps: 4000},
		},
	})
	manager.EmitTyped(events.TokenGraduated, "graduation", &events.TokenGraduatedData{
		Token: "0x1001", RatioBps: 9000, PulledToken: "10", PulledBase: "20", MainVenuePool: "0xd00d",
	})

	got, err := repo.GetByToken("0x1001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.DexConfigs, 2)
	assert.Equal(t, domain.StatusGraduated, got.Status)
	assert.Equal(t, "20", got.PulledBase.String())

	detach()
	manager.EmitTyped(events.TokenRegistered, "graduation", &events.TokenRegisteredData{
		Token: "0x1002", Pool: "0x5002", Creator: "0xc001",
	})
	missing, err := repo.GetByToken("0x1002")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
