/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All sentinel errors in one place. NotFound, InvariantViolation and
  ShapeInvalid are expected business outcomes returned as values, not
  faults; only storage errors are fault-like.

USAGE:
  Callers branch with the helpers or errors.Is:

    if ledger.IsInvariantViolation(err) {
        // business rejection, nothing was written
    }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when the referenced account was never
	// provisioned. Surfaced to the caller as-is, no retry.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvariantViolation is returned when a transaction would push the
	// balance below -limit. It is a business rejection: no mutation
	// occurred and nothing needs retrying.
	ErrInvariantViolation = errors.New("transaction would exceed overdraft limit")

	// ErrShapeInvalid is returned for malformed input (bad kind,
	// non-positive amount, description length out of range). Rejected
	// before any storage access.
	ErrShapeInvalid = errors.New("invalid transaction input")

	// ErrTooMuchContention is returned when the settlement retry budget is
	// exhausted by concurrent writers on the same account. The transaction
	// had no effect; the caller may resubmit.
	ErrTooMuchContention = errors.New("settlement retries exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvariantViolationError reports the rejected amount against the state
// the decision was made on.
type InvariantViolationError struct {
	AccountID int64
	Balance   int64
	Limit     int64
	Kind      Kind
	Amount    int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("account %d: %s of %d rejected: balance %d with limit %d",
		e.AccountID, e.Kind, e.Amount, e.Balance, e.Limit)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsInvariantViolation reports whether err is a business rejection of a
// transaction that would breach the overdraft limit.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsShapeInvalid reports whether err is a validation failure on raw input.
func IsShapeInvalid(err error) bool {
	return errors.Is(err, ErrShapeInvalid)
}
