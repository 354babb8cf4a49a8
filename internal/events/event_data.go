package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Amounts in every payload are base-10 integer strings in the asset's smallest unit.

// ReserveUpdatedData contains data for ReserveUpdated events
type ReserveUpdatedData struct {
	Token       string `json:"token"`
	Pool        string `json:"pool"`
	Reason      string `json:"reason"`
	TokenBefore string `json:"token_before"`
	BaseBefore  string `json:"base_before"`
	TokenAfter  string `json:"token_after"`
	BaseAfter   string `json:"base_after"`
}

// EventType returns the event type for ReserveUpdatedData
func (d *ReserveUpdatedData) EventType() EventType {
	return ReserveUpdated
}

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	TradeID   string `json:"trade_id"`
	Token     string `json:"token"`
	Pool      string `json:"pool"`
	Trader    string `json:"trader"`
	Recipient string `json:"recipient"`
	Side      string `json:"side"`
	ExactOut  bool   `json:"exact_out"`
	AmountIn  string `json:"amount_in"`
	GrossOut  string `json:"gross_out"`
	Tax       string `json:"tax"`
	NetOut    string `json:"net_out"`
	// SpotPrice is base per token after the trade, as a decimal string
	SpotPrice string `json:"spot_price"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// TaxCollectedData contains data for TaxCollected events
type TaxCollectedData struct {
	TradeID        string `json:"trade_id"`
	Token          string `json:"token"`
	Side           string `json:"side"`
	Asset          string `json:"asset"`
	Total          string `json:"total"`
	Creator        string `json:"creator"`
	CreatorAmount  string `json:"creator_amount"`
	Treasury       string `json:"treasury"`
	TreasuryAmount string `json:"treasury_amount"`
}

// EventType returns the event type for TaxCollectedData
func (d *TaxCollectedData) EventType() EventType {
	return TaxCollected
}

// DexConfigData mirrors a venue configuration entry
type DexConfigData struct {
	VenueRef  string `json:"venue_ref"`
	VenueKind string `json:"venue_kind"`
	FeeTier   uint32 `json:"fee_tier"`
	WeightBps uint32 `json:"weight_bps"`
}

// TokenRegisteredData contains data for TokenRegistered events
type TokenRegisteredData struct {
	Token      string          `json:"token"`
	Pool       string          `json:"pool"`
	Creator    string          `json:"creator"`
	Metadata   string          `json:"metadata,omitempty"`
	DexConfigs []DexConfigData `json:"dex_configs"`
}

// EventType returns the event type for TokenRegisteredData
func (d *TokenRegisteredData) EventType() EventType {
	return TokenRegistered
}

// VenueDeploymentData describes the liquidity placed on one venue at graduation
type VenueDeploymentData struct {
	VenueRef    string `json:"venue_ref"`
	VenueKind   string `json:"venue_kind"`
	Pool        string `json:"pool"`
	WeightBps   uint32 `json:"weight_bps"`
	TokenAmount string `json:"token_amount"`
	BaseAmount  string `json:"base_amount"`
	UsedToken   string `json:"used_token"`
	UsedBase    string `json:"used_base"`
	Liquidity   string `json:"liquidity"`
	Created     bool   `json:"created"`
}

// TokenGraduatedData contains data for TokenGraduated events
type TokenGraduatedData struct {
	Token         string                `json:"token"`
	BondingPool   string                `json:"bonding_pool"`
	RatioBps      uint64                `json:"ratio_bps"`
	PulledToken   string                `json:"pulled_token"`
	PulledBase    string                `json:"pulled_base"`
	DustToken     string                `json:"dust_token"`
	DustBase      string                `json:"dust_base"`
	MainVenuePool string                `json:"main_venue_pool"`
	Venues        []VenueDeploymentData `json:"venues"`
}

// EventType returns the event type for TokenGraduatedData
func (d *TokenGraduatedData) EventType() EventType {
	return TokenGraduated
}

// LaunchCompletedData contains data for LaunchCompleted events
type LaunchCompletedData struct {
	LaunchID        string `json:"launch_id"`
	Token           string `json:"token"`
	Pool            string `json:"pool"`
	Creator         string `json:"creator"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Supply          string `json:"supply"`
	AirdropAmount   string `json:"airdrop_amount"`
	PlatformFee     string `json:"platform_fee"`
	SeedTokens      string `json:"seed_tokens"`
	InitialPurchase string `json:"initial_purchase"`
	TokensBought    string `json:"tokens_bought"`
}

// EventType returns the event type for LaunchCompletedData
func (d *LaunchCompletedData) EventType() EventType {
	return LaunchCompleted
}

// PolicyUpdatedData contains data for PolicyUpdated events
type PolicyUpdatedData struct {
	BuyTaxBefore  uint64 `json:"buy_tax_before"`
	SellTaxBefore uint64 `json:"sell_tax_before"`
	MaxHoldBefore uint64 `json:"max_hold_before"`
	BuyTaxAfter   uint64 `json:"buy_tax_after"`
	SellTaxAfter  uint64 `json:"sell_tax_after"`
	MaxHoldAfter  uint64 `json:"max_hold_after"`
}

// EventType returns the event type for PolicyUpdatedData
func (d *PolicyUpdatedData) EventType() EventType {
	return PolicyUpdated
}

// ThresholdUpdatedData contains data for ThresholdUpdated events
type ThresholdUpdatedData struct {
	Before uint64 `json:"before"`
	After  uint64 `json:"after"`
}

// EventType returns the event type for ThresholdUpdatedData
func (d *ThresholdUpdatedData) EventType() EventType {
	return ThresholdUpdated
}

// DexConfigsUpdatedData contains data for DexConfigsUpdated events
type DexConfigsUpdatedData struct {
	Token  string          `json:"token"`
	Before []DexConfigData `json:"before"`
	After  []DexConfigData `json:"after"`
}

// EventType returns the event type for DexConfigsUpdatedData
func (d *DexConfigsUpdatedData) EventType() EventType {
	return DexConfigsUpdated
}

// AirdropRegisteredData contains data for AirdropRegistered events
type AirdropRegisteredData struct {
	Token         string `json:"token"`
	MerkleRoot    string `json:"merkle_root"`
	ClaimantCount uint64 `json:"claimant_count"`
	Amount        string `json:"amount"`
}

// EventType returns the event type for AirdropRegisteredData
func (d *AirdropRegisteredData) EventType() EventType {
	return AirdropRegistered
}

// AirdropClaimedData contains data for AirdropClaimed events
type AirdropClaimedData struct {
	Token   string `json:"token"`
	Index   uint64 `json:"index"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// EventType returns the event type for AirdropClaimedData
func (d *AirdropClaimedData) EventType() EventType {
	return AirdropClaimed
}

// ReserveDriftData contains data for ReserveDriftDetected events
type ReserveDriftData struct {
	Token        string `json:"token"`
	Pool         string `json:"pool"`
	StoredToken  string `json:"stored_token"`
	StoredBase   string `json:"stored_base"`
	BalanceToken string `json:"balance_token"`
	BalanceBase  string `json:"balance_base"`
	Synced       bool   `json:"synced"`
}

// EventType returns the event type for ReserveDriftData
func (d *ReserveDriftData) EventType() EventType {
	return ReserveDriftDetected
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Kind    string                 `json:"kind,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData is an event carrying typed data
type EventWithData struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// newEventData returns an empty payload for t, or nil for unknown types
func newEventData(t EventType) EventData {
	switch t {
	case ReserveUpdated:
		return &ReserveUpdatedData{}
	case TradeExecuted:
		return &TradeExecutedData{}
	case TaxCollected:
		return &TaxCollectedData{}
	case TokenRegistered:
		return &TokenRegisteredData{}
	case TokenGraduated:
		return &TokenGraduatedData{}
	case LaunchCompleted:
		return &LaunchCompletedData{}
	case PolicyUpdated:
		return &PolicyUpdatedData{}
	case ThresholdUpdated:
		return &ThresholdUpdatedData{}
	case DexConfigsUpdated:
		return &DexConfigsUpdatedData{}
	case AirdropRegistered:
		return &AirdropRegisteredData{}
	case AirdropClaimed:
		return &AirdropClaimedData{}
	case ReserveDriftDetected:
		return &ReserveDriftData{}
	case ErrorOccurred:
		return &ErrorEventData{}
	}
	return nil
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		eventData := newEventData(aux.Type)
		if eventData == nil {
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			e.Data = &GenericEventData{Type: aux.Type, Data: rawData}
			return nil
		}
		if err := json.Unmarshal(aux.Data, eventData); err != nil {
			return err
		}
		e.Data = eventData
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
