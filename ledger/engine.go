/*
engine.go - Atomic settlement of debit/credit transactions

PURPOSE:
  The Engine owns the read-check-write sequence that mutates an account
  balance and appends the transaction record. It is the only mutation
  path in the system.

CONCURRENCY:
  The naive "read balance, compute, write balance" sequence is a
  check-then-act race: two concurrent debits can both read the same
  balance, both pass the limit check, and together breach the overdraft
  limit or lose an update. The engine closes it with an optimistic loop:

    1. Read balance + limit
    2. Decide: candidate = balance +/- amount; reject if candidate < -limit
    3. SettleIf(expected=balance, updated=candidate, tx) - the store
       writes only if the balance is still what step 1 read, and commits
       the balance update and log append as one unit
    4. On CAS conflict, re-read and re-decide; bounded retry budget

  Conflicts only arise between writers on the SAME account; cross-account
  settlements never contend. There is no global lock.

GUARANTEES:
  - The final balance equals some serial order of exactly the accepted
    transactions
  - No accepted transaction is ever later found to have violated the
    invariant balance >= -limit
  - A rejected or failed transaction leaves no trace
  - A settled transaction is observable only together with its balance
    update, never one without the other

SEE ALSO:
  - store.go: The SettleIf contract
  - query.go: The read side
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/ledger-engine/events"
)

// maxSettleAttempts bounds the optimistic retry loop. Conflicts arise
// between writers on the same account only, and one caller can lose the
// CAS at most once per settlement another caller commits in between, so
// a burst of N concurrent settlements costs a loser at most N retries.
const maxSettleAttempts = 64

// Engine applies transactions to accounts, preserving the overdraft
// invariant under concurrent callers.
type Engine struct {
	store     Store
	publisher events.Publisher
	now       func() time.Time
}

// NewEngine creates an engine over the given store. A nil publisher
// disables event emission.
func NewEngine(store Store, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Apply settles tx against the account, or rejects it with no side
// effects. tx must come from NewTransaction; shape-invalid input never
// reaches this point.
//
// Errors: ErrAccountNotFound, ErrInvariantViolation (via
// *InvariantViolationError), ErrTooMuchContention, or a wrapped storage
// fault. Only a nil error means the transaction was durably committed.
func (e *Engine) Apply(ctx context.Context, accountID int64, tx Transaction) (Settlement, error) {
	for attempt := 0; attempt < maxSettleAttempts; attempt++ {
		acct, err := e.store.Account(ctx, accountID)
		if err != nil {
			return Settlement{}, err
		}

		candidate := acct.Balance + tx.delta()
		if candidate < -acct.Limit {
			return Settlement{}, &InvariantViolationError{
				AccountID: accountID,
				Balance:   acct.Balance,
				Limit:     acct.Limit,
				Kind:      tx.Kind,
				Amount:    tx.Amount,
			}
		}

		settled := tx
		settled.ID = uuid.NewString()
		settled.AccountID = accountID
		settled.OccurredAt = e.now().UTC()

		ok, err := e.store.SettleIf(ctx, accountID, acct.Balance, candidate, settled)
		if err != nil {
			return Settlement{}, err
		}
		if !ok {
			// Lost the race to another writer on this account; the
			// balance we read is stale. Re-read and re-decide.
			continue
		}

		s := Settlement{Transaction: settled, Balance: candidate, Limit: acct.Limit}
		e.emit(s)
		return s, nil
	}
	return Settlement{}, ErrTooMuchContention
}

// emit publishes the settlement event. The settlement is already
// committed; a publish failure is logged and swallowed.
func (e *Engine) emit(s Settlement) {
	evt := events.TransactionSettled{
		TransactionID: s.Transaction.ID,
		AccountID:     s.Transaction.AccountID,
		Kind:          string(s.Transaction.Kind),
		Amount:        s.Transaction.Amount,
		Balance:       s.Balance,
		OccurredAt:    s.Transaction.OccurredAt,
	}
	if err := e.publisher.Publish(events.TopicTransactionSettled, evt); err != nil {
		log.Printf("events: publish settled transaction %s: %v", s.Transaction.ID, err)
	}
}
