package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/rs/zerolog"
)

// TradeRecord is a committed trade as stored in the ledger database
type TradeRecord struct {
	ID         string           `json:"id"`
	Token      string           `json:"token"`
	Pool       string           `json:"pool"`
	Trader     string           `json:"trader"`
	Recipient  string           `json:"recipient"`
	Side       domain.TradeSide `json:"side"`
	ExactOut   bool             `json:"exact_out"`
	AmountIn   *big.Int         `json:"amount_in"`
	GrossOut   *big.Int         `json:"gross_out"`
	Tax        *big.Int         `json:"tax"`
	NetOut     *big.Int         `json:"net_out"`
	SpotPrice  string           `json:"spot_price"`
	ExecutedAt time.Time        `json:"executed_at"`
}

// Validate checks a record before insertion
func (t TradeRecord) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trade id is required")
	}
	if t.Token == "" || t.Pool == "" {
		return fmt.Errorf("token and pool are required")
	}
	if t.Side != domain.TradeSideBuy && t.Side != domain.TradeSideSell {
		return fmt.Errorf("invalid side %q", t.Side)
	}
	for name, v := range map[string]*big.Int{"amount_in": t.AmountIn, "gross_out": t.GrossOut, "tax": t.Tax, "net_out": t.NetOut} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("%s must be a non-negative amount", name)
		}
	}
	return nil
}

// TaxCollection is one trade's tax split
type TaxCollection struct {
	TradeID        string    `json:"trade_id"`
	Token          string    `json:"token"`
	Side           string    `json:"side"`
	Asset          string    `json:"asset"`
	Total          *big.Int  `json:"total"`
	Creator        string    `json:"creator"`
	CreatorAmount  *big.Int  `json:"creator_amount"`
	Treasury       string    `json:"treasury"`
	TreasuryAmount *big.Int  `json:"treasury_amount"`
	CollectedAt    time.Time `json:"collected_at"`
}

// TaxTotals aggregates the tax a token has produced in one asset
type TaxTotals struct {
	Token    string   `json:"token"`
	Asset    string   `json:"asset"`
	Count    int      `json:"count"`
	Total    *big.Int `json:"total"`
	Creator  *big.Int `json:"creator"`
	Treasury *big.Int `json:"treasury"`
}

// TradeRepositoryInterface defines the interface for trade persistence
type TradeRepositoryInterface interface {
	// Create inserts a trade, ignoring duplicates by id
	Create(trade TradeRecord) error

	// RecordTax inserts a tax split, ignoring duplicates by trade id
	RecordTax(tax TaxCollection) error

	// GetByID retrieves a trade by id
	GetByID(id string) (*TradeRecord, error)

	// Exists checks if a trade with the given id exists
	Exists(id string) (bool, error)

	// GetHistory retrieves recent trades across all tokens
	GetHistory(limit int) ([]TradeRecord, error)

	// GetByToken retrieves recent trades of one token
	GetByToken(token string, limit int) ([]TradeRecord, error)

	// GetAllInRange retrieves trades executed in [start, end]
	GetAllInRange(start, end time.Time) ([]TradeRecord, error)

	// GetTaxTotals aggregates collected tax for a token, per asset
	GetTaxTotals(token string) ([]TaxTotals, error)

	// GetTradeCountSince counts trades by trader since t
	GetTradeCountSince(trader string, t time.Time) (int, error)
}

// Compile-time check that TradeRepository implements TradeRepositoryInterface
var _ TradeRepositoryInterface = (*TradeRepository)(nil)

// TradeRepository handles trade database operations
type TradeRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade().
const tradesColumns = `id, token, pool, trader, recipient, side, exact_out, amount_in, gross_out, tax, net_out, spot_price, executed_at`

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// Attach persists committed trades and tax splits as they are published on bus.
// Returns a function that detaches the repository.
func (r *TradeRepository) Attach(bus *events.Bus) func() {
	offTrades := bus.Subscribe(events.TradeExecuted, r.onTradeExecuted)
	offTax := bus.Subscribe(events.TaxCollected, r.onTaxCollected)
	return func() {
		offTrades()
		offTax()
	}
}

func (r *TradeRepository) onTradeExecuted(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TradeExecutedData)
	if !ok {
		r.log.Warn().Str("event_id", e.ID).Msg("Unexpected trade event payload")
		return
	}
	trade := TradeRecord{
		ID:         data.TradeID,
		Token:      data.Token,
		Pool:       data.Pool,
		Trader:     data.Trader,
		Recipient:  data.Recipient,
		Side:       domain.TradeSide(data.Side),
		ExactOut:   data.ExactOut,
		AmountIn:   parseStored(data.AmountIn),
		GrossOut:   parseStored(data.GrossOut),
		Tax:        parseStored(data.Tax),
		NetOut:     parseStored(data.NetOut),
		SpotPrice:  data.SpotPrice,
		ExecutedAt: e.Timestamp,
	}
	if err := r.Create(trade); err != nil {
		r.log.Error().Err(err).Str("trade_id", data.TradeID).Msg("Failed to persist trade")
	}
}

func (r *TradeRepository) onTaxCollected(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TaxCollectedData)
	if !ok {
		r.log.Warn().Str("event_id", e.ID).Msg("Unexpected tax event payload")
		return
	}
	tax := TaxCollection{
		TradeID:        data.TradeID,
		Token:          data.Token,
		Side:           data.Side,
		Asset:          data.Asset,
		Total:          parseStored(data.Total),
		Creator:        data.Creator,
		CreatorAmount:  parseStored(data.CreatorAmount),
		Treasury:       data.Treasury,
		TreasuryAmount: parseStored(data.TreasuryAmount),
		CollectedAt:    e.Timestamp,
	}
	if err := r.RecordTax(tax); err != nil {
		r.log.Error().Err(err).Str("trade_id", data.TradeID).Msg("Failed to persist tax collection")
	}
}

// Create inserts a new trade record
func (r *TradeRepository) Create(trade TradeRecord) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	exactOut := 0
	if trade.ExactOut {
		exactOut = 1
	}
	spot := trade.SpotPrice
	if spot == "" {
		spot = "0"
	}

	res, err := r.ledgerDB.Exec(`
		INSERT OR IGNORE INTO trades
		(`+tradesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID,
		normalizeAddress(trade.Token),
		normalizeAddress(trade.Pool),
		normalizeAddress(trade.Trader),
		normalizeAddress(trade.Recipient),
		string(trade.Side),
		exactOut,
		trade.AmountIn.String(),
		trade.GrossOut.String(),
		trade.Tax.String(),
		trade.NetOut.String(),
		spot,
		trade.ExecutedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r.log.Debug().Str("trade_id", trade.ID).Msg("Trade already recorded, skipping duplicate")
		return nil
	}

	r.log.Info().
		Str("trade_id", trade.ID).
		Str("token", trade.Token).
		Str("side", string(trade.Side)).
		Str("amount_in", trade.AmountIn.String()).
		Str("net_out", trade.NetOut.String()).
		Msg("Trade recorded")

	return nil
}

// RecordTax inserts a tax split
func (r *TradeRepository) RecordTax(tax TaxCollection) error {
	if tax.TradeID == "" || tax.Token == "" {
		return fmt.Errorf("failed to record tax: trade id and token are required")
	}
	_, err := r.ledgerDB.Exec(`
		INSERT OR IGNORE INTO tax_collections
		(trade_id, token, side, asset, total, creator, creator_amount, treasury, treasury_amount, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tax.TradeID,
		normalizeAddress(tax.Token),
		tax.Side,
		normalizeAddress(tax.Asset),
		domain.Copy(tax.Total).String(),
		normalizeAddress(tax.Creator),
		domain.Copy(tax.CreatorAmount).String(),
		normalizeAddress(tax.Treasury),
		domain.Copy(tax.TreasuryAmount).String(),
		tax.CollectedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record tax: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by id
func (r *TradeRepository) GetByID(id string) (*TradeRecord, error) {
	row := r.ledgerDB.QueryRow("SELECT "+tradesColumns+" FROM trades WHERE id = ?", id)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by id: %w", err)
	}
	return &trade, nil
}

// Exists checks if a trade with the given id already exists
func (r *TradeRepository) Exists(id string) (bool, error) {
	var exists int
	err := r.ledgerDB.QueryRow("SELECT 1 FROM trades WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return true, nil
}

// GetHistory retrieves trade history, most recent first
func (r *TradeRepository) GetHistory(limit int) ([]TradeRecord, error) {
	return r.queryTrades(`
		SELECT `+tradesColumns+` FROM trades
		ORDER BY executed_at DESC, rowid DESC
		LIMIT ?
	`, limit)
}

// GetByToken retrieves a token's trades, most recent first
func (r *TradeRepository) GetByToken(token string, limit int) ([]TradeRecord, error) {
	return r.queryTrades(`
		SELECT `+tradesColumns+` FROM trades
		WHERE token = ?
		ORDER BY executed_at DESC, rowid DESC
		LIMIT ?
	`, normalizeAddress(token), limit)
}

// GetAllInRange retrieves all trades within a time range, oldest first
func (r *TradeRepository) GetAllInRange(start, end time.Time) ([]TradeRecord, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return r.queryTrades(`
		SELECT `+tradesColumns+` FROM trades
		WHERE executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, rowid ASC
	`, start.UnixMilli(), end.UnixMilli())
}

// GetTaxTotals sums collected tax for token, grouped by asset.
// Amounts are summed in Go; they do not fit sqlite integers.
func (r *TradeRepository) GetTaxTotals(token string) ([]TaxTotals, error) {
	rows, err := r.ledgerDB.Query(`
		SELECT asset, total, creator_amount, treasury_amount
		FROM tax_collections
		WHERE token = ?
		ORDER BY asset
	`, normalizeAddress(token))
	if err != nil {
		return nil, fmt.Errorf("failed to get tax totals: %w", err)
	}
	defer rows.Close()

	var out []TaxTotals
	byAsset := make(map[string]int)
	for rows.Next() {
		var asset, total, creator, treasury string
		if err := rows.Scan(&asset, &total, &creator, &treasury); err != nil {
			return nil, fmt.Errorf("failed to scan tax row: %w", err)
		}
		i, ok := byAsset[asset]
		if !ok {
			i = len(out)
			byAsset[asset] = i
			out = append(out, TaxTotals{
				Token:    normalizeAddress(token),
				Asset:    asset,
				Total:    new(big.Int),
				Creator:  new(big.Int),
				Treasury: new(big.Int),
			})
		}
		out[i].Count++
		out[i].Total.Add(out[i].Total, parseStored(total))
		out[i].Creator.Add(out[i].Creator, parseStored(creator))
		out[i].Treasury.Add(out[i].Treasury, parseStored(treasury))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax rows: %w", err)
	}
	return out, nil
}

// GetTradeCountSince counts trades placed by trader since t
func (r *TradeRepository) GetTradeCountSince(trader string, t time.Time) (int, error) {
	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM trades WHERE trader = ? AND executed_at >= ?",
		normalizeAddress(trader), t.UnixMilli(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]TradeRecord, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (TradeRecord, error) {
	var (
		trade                          TradeRecord
		side                           string
		exactOut                       int
		amountIn, grossOut, tax, netOut string
		executedAt                     int64
	)
	err := row.Scan(
		&trade.ID,
		&trade.Token,
		&trade.Pool,
		&trade.Trader,
		&trade.Recipient,
		&side,
		&exactOut,
		&amountIn,
		&grossOut,
		&tax,
		&netOut,
		&trade.SpotPrice,
		&executedAt,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	trade.Side = domain.TradeSide(side)
	trade.ExactOut = exactOut != 0
	trade.AmountIn = parseStored(amountIn)
	trade.GrossOut = parseStored(grossOut)
	trade.Tax = parseStored(tax)
	trade.NetOut = parseStored(netOut)
	trade.ExecutedAt = time.UnixMilli(executedAt).UTC()
	return trade, nil
}

// parseStored reads an amount written by this package; malformed values read as zero
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
