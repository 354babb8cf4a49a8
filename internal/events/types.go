// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	// Engine notifications
	ReserveUpdated  EventType = "RESERVE_UPDATED"
	TradeExecuted   EventType = "TRADE_EXECUTED"
	TaxCollected    EventType = "TAX_COLLECTED"
	TokenRegistered EventType = "TOKEN_REGISTERED"
	TokenGraduated  EventType = "TOKEN_GRADUATED"
	LaunchCompleted EventType = "LAUNCH_COMPLETED"

	// Administrative changes
	PolicyUpdated     EventType = "POLICY_UPDATED"
	ThresholdUpdated  EventType = "THRESHOLD_UPDATED"
	DexConfigsUpdated EventType = "DEX_CONFIGS_UPDATED"

	// Claim distributor
	AirdropRegistered EventType = "AIRDROP_REGISTERED"
	AirdropClaimed    EventType = "AIRDROP_CLAIMED"

	// Operational
	ReserveDriftDetected EventType = "RESERVE_DRIFT_DETECTED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every type the engine emits, in a stable order
var AllEventTypes = []EventType{
	ReserveUpdated,
	TradeExecuted,
	TaxCollected,
	TokenRegistered,
	TokenGraduated,
	LaunchCompleted,
	PolicyUpdated,
	ThresholdUpdated,
	DexConfigsUpdated,
	AirdropRegistered,
	AirdropClaimed,
	ReserveDriftDetected,
	ErrorOccurred,
}
