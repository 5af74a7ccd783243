/*
Package ledger provides the core settlement engine for a fixed population
of pre-provisioned accounts.

PURPOSE:
  This package contains the domain types and algorithms for applying
  debit/credit transactions against account balances under an overdraft
  limit, and for composing the read-only extract view (current balance +
  recent history).

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: balance + overdraft limit, provisioned out-of-band
  - Transaction: an immutable record of a settled debit or credit
  - Extract: derived view of balance/limit + recent transactions
  - Parse functions: validate raw input into already-valid values

DESIGN PRINCIPLES:
  1. Immutability: Settled transactions are never modified or deleted
  2. Precision: Amounts are int64 minor currency units (cents)
  3. Parse, don't validate twice: input crosses into the domain exactly
     once, through NewTransaction; downstream code never re-checks
  4. Invariant: balance >= -limit at all times, for every account

SEE ALSO:
  - engine.go: Atomic settlement (the only mutation path)
  - query.go: Extract composition
  - store.go: Persistence interface
*/
package ledger

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// =============================================================================
// TRANSACTION KIND
// =============================================================================

// Kind is the direction of a transaction. A debit decreases the balance,
// a credit increases it. The wire values "d" and "c" are part of the
// external contract and are kept as the canonical representation.
type Kind string

const (
	KindDebit  Kind = "d"
	KindCredit Kind = "c"
)

// ParseKind validates a raw kind string. Anything other than "d" or "c"
// is shape-invalid input.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDebit, KindCredit:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: kind must be \"d\" or \"c\", got %q", ErrShapeInvalid, s)
	}
}

// =============================================================================
// DESCRIPTION
// =============================================================================

// MaxDescriptionLen is the inclusive upper bound on description length,
// counted in characters.
const MaxDescriptionLen = 10

// ParseDescription validates a transaction description: non-empty, at
// most MaxDescriptionLen characters.
func ParseDescription(s string) (string, error) {
	n := utf8.RuneCountInString(s)
	if n < 1 || n > MaxDescriptionLen {
		return "", fmt.Errorf("%w: description length must be in [1,%d], got %d",
			ErrShapeInvalid, MaxDescriptionLen, n)
	}
	return s, nil
}

// ParseAmount validates a transaction amount: a positive integer in
// minor currency units.
func ParseAmount(v int64) (int64, error) {
	if v <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %d", ErrShapeInvalid, v)
	}
	return v, nil
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a provisioned client account. ID and Limit are immutable
// after provisioning; Balance is mutated only by Engine.Apply.
type Account struct {
	ID      int64
	Balance int64 // minor units; may go negative down to -Limit
	Limit   int64 // maximum overdraft magnitude, non-negative
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is a debit or credit against one account. ID, AccountID
// and OccurredAt are assigned by the engine at settlement; a transaction
// built by NewTransaction carries only the validated client fields.
type Transaction struct {
	ID          string
	AccountID   int64
	Kind        Kind
	Amount      int64 // positive, minor units
	Description string
	OccurredAt  time.Time
}

// NewTransaction parses and validates raw client input into a
// transaction ready for settlement. Invalid input short-circuits with an
// ErrShapeInvalid-wrapped error before any domain value is constructed;
// a transaction returned by NewTransaction never needs re-checking.
func NewTransaction(kind string, amount int64, description string) (Transaction, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Transaction{}, err
	}
	v, err := ParseAmount(amount)
	if err != nil {
		return Transaction{}, err
	}
	d, err := ParseDescription(description)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{Kind: k, Amount: v, Description: d}, nil
}

// delta is the signed effect of the transaction on a balance.
func (t Transaction) delta() int64 {
	if t.Kind == KindDebit {
		return -t.Amount
	}
	return t.Amount
}

// =============================================================================
// SETTLEMENT & EXTRACT
// =============================================================================

// Settlement is the outcome of a successful Apply: the settled
// transaction plus the balance and limit observed at settlement time.
type Settlement struct {
	Transaction Transaction
	Balance     int64
	Limit       int64
}

// Extract is the derived recent-history view of one account. It is
// composed at read time and never stored.
type Extract struct {
	Balance      int64
	Limit        int64
	ComputedAt   time.Time
	Transactions []Transaction // newest first, at most ExtractLimit entries
}
