package graduation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/rs/zerolog"
)

// ProfileRecord is the persisted history of one launched token
type ProfileRecord struct {
	Token         string                       `json:"token"`
	Pool          string                       `json:"pool"`
	Creator       string                       `json:"creator"`
	Metadata      string                       `json:"metadata"`
	DexConfigs    []events.DexConfigData       `json:"dex_configs"`
	Status        domain.GraduationStatus      `json:"status"`
	RegisteredAt  time.Time                    `json:"registered_at"`
	GraduatedAt   *time.Time                   `json:"graduated_at,omitempty"`
	RatioBps      uint64                       `json:"ratio_bps"`
	PulledToken   *big.Int                     `json:"pulled_token"`
	PulledBase    *big.Int                     `json:"pulled_base"`
	MainVenuePool string                       `json:"main_venue_pool,omitempty"`
	Venues        []events.VenueDeploymentData `json:"venues"`
}

// ProfileRepositoryInterface defines the interface for profile persistence
type ProfileRepositoryInterface interface {
	// Register inserts a bonding profile, ignoring duplicates by token
	Register(rec ProfileRecord) error

	// MarkGraduated records the outcome of a graduation
	MarkGraduated(token string, at time.Time, data *events.TokenGraduatedData) error

	// UpdateDexConfigs replaces a token's stored venue configs
	UpdateDexConfigs(token string, configs []events.DexConfigData) error

	// GetByToken retrieves a profile, or nil when absent
	GetByToken(token string) (*ProfileRecord, error)

	// List retrieves profiles, newest first, optionally filtered by status
	List(status domain.GraduationStatus, limit int) ([]ProfileRecord, error)

	// CountByStatus counts profiles per status
	CountByStatus() (map[domain.GraduationStatus]int, error)
}

// Compile-time check that ProfileRepository implements ProfileRepositoryInterface
var _ ProfileRepositoryInterface = (*ProfileRepository)(nil)

// ProfileRepository handles token profile database operations
type ProfileRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// profileColumns must match scanProfile()
const profileColumns = `token, pool, creator, metadata, dex_configs, status, registered_at, graduated_at, ratio_bps, pulled_token, pulled_base, main_venue_pool, venues`

// NewProfileRepository creates a new profile repository
func NewProfileRepository(ledgerDB *sql.DB, log zerolog.Logger) *ProfileRepository {
	return &ProfileRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "token_profile").Logger(),
	}
}

// Attach persists registrations, config changes and graduations published on bus.
// Returns a function that detaches the repository.
func (r *ProfileRepository) Attach(bus *events.Bus) func() {
	offRegistered := bus.Subscribe(events.TokenRegistered, r.onTokenRegistered)
	offConfigs := bus.Subscribe(events.DexConfigsUpdated, r.onDexConfigsUpdated)
	offGraduated := bus.Subscribe(events.TokenGraduated, r.onTokenGraduated)
	return func() {
		offRegistered()
		offConfigs()
		offGraduated()
	}
}

func (r *ProfileRepository) onTokenRegistered(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TokenRegisteredData)
	if !ok {
		r.log.Warn().Str("event_id", e.ID).Msg("Unexpected registration payload")
		return
	}
	rec := ProfileRecord{
		Token:        data.Token,
		Pool:         data.Pool,
		Creator:      data.Creator,
		Metadata:     data.Metadata,
		DexConfigs:   data.DexConfigs,
		Status:       domain.StatusBonding,
		RegisteredAt: e.Timestamp,
	}
	if err := r.Register(rec); err != nil {
		r.log.Error().Err(err).Str("token", data.Token).Msg("Failed to persist token profile")
	}
}

func (r *ProfileRepository) onDexConfigsUpdated(e *events.Event) {
	data, ok := e.GetTypedData().(*events.DexConfigsUpdatedData)
	if !ok {
		r.log.Warn().Str("event_id", e.ID).Msg("Unexpected dex config payload")
		return
	}
	if err := r.UpdateDexConfigs(data.Token, data.After); err != nil {
		r.log.Error().Err(err).Str("token", data.Token).Msg("Failed to persist dex configs")
	}
}

func (r *ProfileRepository) onTokenGraduated(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TokenGraduatedData)
	if !ok {
		r.log.Warn().Str("event_id", e.ID).Msg("Unexpected graduation payload")
		return
	}
	if err := r.MarkGraduated(data.Token, e.Timestamp, data); err != nil {
		r.log.Error().Err(err).Str("token", data.Token).Msg("Failed to persist graduation")
	}
}

// Register inserts a new bonding profile
func (r *ProfileRepository) Register(rec ProfileRecord) error {
	if rec.Token == "" || rec.Pool == "" || rec.Creator == "" {
		return fmt.Errorf("failed to register profile: token, pool and creator are required")
	}
	configs, err := json.Marshal(nonNilConfigs(rec.DexConfigs))
	if err != nil {
		return fmt.Errorf("failed to encode dex configs: %w", err)
	}
	status := rec.Status
	if status == "" {
		status = domain.StatusBonding
	}

	res, err := r.ledgerDB.Exec(`
		INSERT OR IGNORE INTO token_profiles
		(token, pool, creator, metadata, dex_configs, status, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		normalizeAddress(rec.Token),
		normalizeAddress(rec.Pool),
		normalizeAddress(rec.Creator),
		rec.Metadata,
		string(configs),
		string(status),
		rec.RegisteredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to register profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.log.Debug().Str("token", rec.Token).Msg("Profile already recorded, skipping duplicate")
		return nil
	}

	r.log.Info().
		Str("token", rec.Token).
		Str("pool", rec.Pool).
		Int("venues", len(rec.DexConfigs)).
		Msg("Token profile recorded")
	return nil
}

// MarkGraduated flips a profile to graduated and stores the deployment outcome
func (r *ProfileRepository) MarkGraduated(token string, at time.Time, data *events.TokenGraduatedData) error {
	if data == nil {
		return fmt.Errorf("failed to mark graduation: no graduation data")
	}
	venuesJSON, err := json.Marshal(data.Venues)
	if err != nil {
		return fmt.Errorf("failed to encode venues: %w", err)
	}
	res, err := r.ledgerDB.Exec(`
		UPDATE token_profiles
		SET status = ?, graduated_at = ?, ratio_bps = ?, pulled_token = ?, pulled_base = ?,
		    main_venue_pool = ?, venues = ?
		WHERE token = ?
	`,
		string(domain.StatusGraduated),
		at.UnixMilli(),
		int64(data.RatioBps),
		storedOrZero(data.PulledToken),
		storedOrZero(data.PulledBase),
		normalizeAddress(data.MainVenuePool),
		string(venuesJSON),
		normalizeAddress(token),
	)
	if err != nil {
		return fmt.Errorf("failed to mark graduation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to mark graduation: no profile for %s", token)
	}

	r.log.Info().
		Str("token", token).
		Str("main_venue_pool", data.MainVenuePool).
		Msg("Token graduation recorded")
	return nil
}

// UpdateDexConfigs replaces the stored venue configs of a token
func (r *ProfileRepository) UpdateDexConfigs(token string, configs []events.DexConfigData) error {
	encoded, err := json.Marshal(nonNilConfigs(configs))
	if err != nil {
		return fmt.Errorf("failed to encode dex configs: %w", err)
	}
	_, err = r.ledgerDB.Exec(`UPDATE token_profiles SET dex_configs = ? WHERE token = ?`,
		string(encoded), normalizeAddress(token))
	if err != nil {
		return fmt.Errorf("failed to update dex configs: %w", err)
	}
	return nil
}

// GetByToken retrieves a profile by token address
func (r *ProfileRepository) GetByToken(token string) (*ProfileRecord, error) {
	row := r.ledgerDB.QueryRow(`SELECT `+profileColumns+` FROM token_profiles WHERE token = ?`, normalizeAddress(token))
	rec, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &rec, nil
}

// List retrieves profiles, newest first. An empty status lists every profile.
func (r *ProfileRepository) List(status domain.GraduationStatus, limit int) ([]ProfileRecord, error) {
	query := `SELECT ` + profileColumns + ` FROM token_profiles`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY registered_at DESC, token ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileRecord
	for rows.Next() {
		rec, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByStatus counts profiles per status
func (r *ProfileRepository) CountByStatus() (map[domain.GraduationStatus]int, error) {
	rows, err := r.ledgerDB.Query(`SELECT status, COUNT(*) FROM token_profiles GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}
	defer rows.Close()

	counts := map[domain.GraduationStatus]int{
		domain.StatusBonding:   0,
		domain.StatusGraduated: 0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan profile count: %w", err)
		}
		counts[domain.GraduationStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (ProfileRecord, error) {
	var (
		rec                     ProfileRecord
		configs, status, venues string
		registeredAt            int64
		graduatedAt             sql.NullInt64
		ratio                   int64
		pulledToken, pulledBase string
	)
	err := row.Scan(
		&rec.Token,
		&rec.Pool,
		&rec.Creator,
		&rec.Metadata,
		&configs,
		&status,
		&registeredAt,
		&graduatedAt,
		&ratio,
		&pulledToken,
		&pulledBase,
		&rec.MainVenuePool,
		&venues,
	)
	if err != nil {
		return ProfileRecord{}, err
	}
	if err := json.Unmarshal([]byte(configs), &rec.DexConfigs); err != nil {
		return ProfileRecord{}, fmt.Errorf("bad dex configs for %s: %w", rec.Token, err)
	}
	if err := json.Unmarshal([]byte(venues), &rec.Venues); err != nil {
		return ProfileRecord{}, fmt.Errorf("bad venues for %s: %w", rec.Token, err)
	}
	rec.Status = domain.GraduationStatus(status)
	rec.RegisteredAt = time.UnixMilli(registeredAt).UTC()
	if graduatedAt.Valid {
		t := time.UnixMilli(graduatedAt.Int64).UTC()
		rec.GraduatedAt = &t
	}
	rec.RatioBps = uint64(ratio)
	rec.PulledToken = parseStored(pulledToken)
	rec.PulledBase = parseStored(pulledBase)
	if rec.Venues == nil {
		rec.Venues = []events.VenueDeploymentData{}
	}
	return rec, nil
}

func nonNilConfigs(configs []events.DexConfigData) []events.DexConfigData {
	if configs == nil {
		return []events.DexConfigData{}
	}
	return configs
}

func storedOrZero(s string) string {
	if _, ok := new(big.Int).SetString(s, 10); !ok {
		return "0"
	}
	return s
}

func parseStored(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// normalizeAddress lowercases hex addresses so lookups are case-insensitive
func normalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
