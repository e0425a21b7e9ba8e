package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing position/order/plan for the requested symbol.
// Callers must not retry it.
var ErrNotFound = errors.New("not found")

// Leg names identify which stage of a multi-call sequence failed; error
// messages always carry one so partial completion is never ambiguous.
const (
	LegEntry          = "entry"
	LegBorrow         = "borrow"
	LegRepay          = "repay"
	LegProtectionOCO  = "protection_oco"
	LegProtectionStop = "protection_stop"
	LegProtectionTP   = "protection_take_profit"
	LegClose          = "close"
)

// ValidationError rejects missing or contradictory parameters before any
// venue call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// VenueRejection wraps an exchange-side error together with the leg that
// produced it.
type VenueRejection struct {
	Leg string
	Err error
}

func (e *VenueRejection) Error() string {
	return fmt.Sprintf("venue rejected %s leg: %v", e.Leg, e.Err)
}

func (e *VenueRejection) Unwrap() error { return e.Err }

// PricingUnavailableError aborts an operation that cannot proceed without a
// live price.
type PricingUnavailableError struct {
	Symbol string
	Err    error
}

func (e *PricingUnavailableError) Error() string {
	return fmt.Sprintf("pricing unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *PricingUnavailableError) Unwrap() error { return e.Err }

// BorrowCapacityUnknownError reports a failed capacity query; the caller
// decides whether to proceed unlevered or abort.
type BorrowCapacityUnknownError struct {
	Asset string
	Err   error
}

func (e *BorrowCapacityUnknownError) Error() string {
	return fmt.Sprintf("borrow capacity unknown for %s: %v", e.Asset, e.Err)
}

func (e *BorrowCapacityUnknownError) Unwrap() error { return e.Err }
