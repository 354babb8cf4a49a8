package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure so callers can decide who has to fix it
type ErrorKind string

const (
	// KindValidation - the caller sent something malformed (zero address, bad path, expired deadline)
	KindValidation ErrorKind = "validation"
	// KindEconomic - the request was well formed but the market outcome is unacceptable
	KindEconomic ErrorKind = "economic"
	// KindState - the request conflicts with the current lifecycle state or capabilities
	KindState ErrorKind = "state"
)

// Error is a discriminable engine error. Sentinels are compared by identity,
// so wrapping with fmt.Errorf("...: %w", ErrX) keeps errors.Is working.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation errors
var (
	ErrZeroAddress       = newError(KindValidation, "ZERO_ADDRESS", "zero address")
	ErrZeroAmount        = newError(KindValidation, "ZERO_AMOUNT", "zero amount")
	ErrInvalidPath       = newError(KindValidation, "INVALID_PATH", "invalid swap path")
	ErrAmbiguousSwap     = newError(KindValidation, "AMBIGUOUS_SWAP", "exactly one swap input must be non-zero")
	ErrWeightMismatch    = newError(KindValidation, "WEIGHT_MISMATCH", "dex config weights must sum to 10000 bps")
	ErrZeroWeight        = newError(KindValidation, "ZERO_WEIGHT", "dex config weight must be positive")
	ErrEmptyDexConfigs   = newError(KindValidation, "EMPTY_DEX_CONFIGS", "at least one dex config is required")
	ErrExpired           = newError(KindValidation, "EXPIRED", "deadline expired")
	ErrPercentageOverCap = newError(KindValidation, "PERCENTAGE_OVER_CAP", "percentage over cap")
	ErrInvalidParameter  = newError(KindValidation, "INVALID_PARAMETER", "invalid parameter")
	ErrUnknownVenue      = newError(KindValidation, "UNKNOWN_VENUE", "unknown venue")
	ErrVenueKindMismatch = newError(KindValidation, "VENUE_KIND_MISMATCH", "venue kind does not match adapter")
	ErrInvalidProof      = newError(KindValidation, "INVALID_PROOF", "invalid merkle proof")
)

// Economic errors
var (
	ErrInsufficientOutput    = newError(KindEconomic, "INSUFFICIENT_OUTPUT", "insufficient output amount")
	ErrExcessiveInput        = newError(KindEconomic, "EXCESSIVE_INPUT", "excessive input amount")
	ErrMaxHoldExceeded       = newError(KindEconomic, "MAX_HOLD_EXCEEDED", "max hold exceeded")
	ErrThresholdNotMet       = newError(KindEconomic, "THRESHOLD_NOT_MET", "graduation threshold not met")
	ErrAlreadyGraduated      = newError(KindEconomic, "ALREADY_GRADUATED", "token already graduated")
	ErrInsufficientBalance   = newError(KindEconomic, "INSUFFICIENT_BALANCE", "insufficient balance")
	ErrInsufficientAllowance = newError(KindEconomic, "INSUFFICIENT_ALLOWANCE", "insufficient allowance")
	ErrInsufficientLiquidity = newError(KindEconomic, "INSUFFICIENT_LIQUIDITY", "insufficient liquidity")
	ErrInvariantViolated     = newError(KindEconomic, "INVARIANT_VIOLATED", "curve invariant violated")
)

// State errors
var (
	ErrAlreadyRegistered = newError(KindState, "ALREADY_REGISTERED", "already registered")
	ErrNotRegistered     = newError(KindState, "NOT_REGISTERED", "not registered")
	ErrUnauthorized      = newError(KindState, "UNAUTHORIZED", "unauthorized caller")
	ErrUninitialized     = newError(KindState, "UNINITIALIZED", "pool not initialized")
	ErrAlreadySeeded     = newError(KindState, "ALREADY_SEEDED", "pool already seeded")
	ErrAlreadyInit       = newError(KindState, "ALREADY_INITIALIZED", "pool already initialized")
	ErrReentrant         = newError(KindState, "REENTRANT", "reentrant call")
	ErrPoolNotFound      = newError(KindState, "POOL_NOT_FOUND", "pool not found")
	ErrAlreadyClaimed    = newError(KindState, "ALREADY_CLAIMED", "already claimed")
)

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Errorf wraps a sentinel with formatted context
func Errorf(sentinel *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status the API answers with
func HTTPStatus(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrPoolNotFound) || errors.Is(err, ErrNotRegistered) {
		return http.StatusNotFound
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindEconomic:
		return http.StatusUnprocessableEntity
	case KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
