/*
store.go - Persistence interfaces for the ledger core

PURPOSE:
  Defines the storage contract the engine and query service are built
  against. Implementations live under store/ (memory, sqlite, postgres).

CRITICAL INVARIANTS:
  1. APPEND-ONLY: settled transactions are never updated or deleted
  2. ATOMIC SETTLEMENT: the balance write and the log append of SettleIf
     are one unit - both happen or neither does
  3. CAS: SettleIf writes only if the balance still equals the value the
     engine decided on, which closes the check-then-act race
  4. No implementation may write a balance below -limit, even if asked

SEE ALSO:
  - engine.go: The only caller of SettleIf
  - store/sqlite, store/postgres, store/memory: Implementations
*/
package ledger

import "context"

// =============================================================================
// ACCOUNT STORE - balance + limit, source of truth for the invariant
// =============================================================================

// AccountStore is keyed storage for account balance and limit.
type AccountStore interface {
	// Account returns the provisioned account, or ErrAccountNotFound.
	Account(ctx context.Context, id int64) (Account, error)

	// SettleIf atomically sets the account balance to updated and appends
	// tx to the account's transaction log, if and only if the current
	// balance still equals expected. It returns (false, nil) on a CAS
	// conflict, with no effect; the engine re-reads and re-decides.
	//
	// The balance write and the log append are a single atomic unit:
	// readers never observe one without the other. Implementations must
	// refuse an updated value below -limit with an error (never a plain
	// conflict) even though the engine is the authoritative decision
	// point.
	SettleIf(ctx context.Context, id int64, expected, updated int64, tx Transaction) (bool, error)
}

// =============================================================================
// TRANSACTION LOG - durable, per-account ordered, immutable
// =============================================================================

// TransactionLog is the append-only record of settled transactions.
// Appends happen only through SettleIf, linearized with the balance
// update of the same account.
type TransactionLog interface {
	// Recent returns up to n settled transactions for the account, most
	// recent first (ties by insertion order, newest first). The account
	// not existing is not an error here; callers check AccountStore first.
	Recent(ctx context.Context, id int64, n int) ([]Transaction, error)
}

// =============================================================================
// STORE - the full contract a backend implements
// =============================================================================

// Store combines account storage and the transaction log over one
// backend, so the two writes of a settlement share a transaction. The
// handle is constructed once at startup and closed at shutdown.
type Store interface {
	AccountStore
	TransactionLog

	// Provision creates or replaces an account record. Accounts are
	// provisioned out-of-band before the service takes traffic; this also
	// backs test fixtures and the optional seed step.
	Provision(ctx context.Context, a Account) error

	Close() error
}
