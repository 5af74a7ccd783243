/*
Package memory provides an in-memory implementation of ledger.Store.

PURPOSE:
  Backs tests and the no-database demo mode. Settlement atomicity is a
  per-account mutex held across the compare, the balance write and the
  log append - the mutex-scope strategy, where the durable stores use a
  conditional write instead.

CONCURRENCY:
  One mutex per account: writers on the same account serialize, writers
  on different accounts never contend. A store-level mutex protects only
  the account map itself.
*/
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/ledger-engine/ledger"
)

type account struct {
	mu      sync.Mutex // guards balance and log
	id      int64
	balance int64
	limit   int64
	log     []ledger.Transaction // insertion order, oldest first
}

// Store implements ledger.Store in process memory.
type Store struct {
	mu       sync.RWMutex // guards the accounts map, not account state
	accounts map[int64]*account
}

func New() *Store {
	return &Store{accounts: make(map[int64]*account)}
}

func (s *Store) lookup(id int64) *account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[id]
}

// Account returns a copy of the account's current state.
func (s *Store) Account(ctx context.Context, id int64) (ledger.Account, error) {
	a := s.lookup(id)
	if a == nil {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return ledger.Account{ID: a.id, Balance: a.balance, Limit: a.limit}, nil
}

// SettleIf writes the new balance and appends tx while holding the
// account mutex, so the compare and both writes are indivisible.
func (s *Store) SettleIf(ctx context.Context, id int64, expected, updated int64, tx ledger.Transaction) (bool, error) {
	a := s.lookup(id)
	if a == nil {
		return false, ledger.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance != expected {
		return false, nil
	}
	if updated < -a.limit {
		// The engine is the authoritative decision point; refusing here is
		// the store-side half of the invariant contract.
		return false, fmt.Errorf("account %d: refusing balance %d below -%d", id, updated, a.limit)
	}

	a.balance = updated
	a.log = append(a.log, tx)
	return true, nil
}

// Recent returns up to n transactions, newest first.
func (s *Store) Recent(ctx context.Context, id int64, n int) ([]ledger.Transaction, error) {
	a := s.lookup(id)
	if a == nil {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n > len(a.log) {
		n = len(a.log)
	}
	out := make([]ledger.Transaction, 0, n)
	for i := len(a.log) - 1; i >= len(a.log)-n; i-- {
		out = append(out, a.log[i])
	}
	return out, nil
}

// Provision creates or replaces an account. Replacing drops any existing
// log; accounts are provisioned before the store takes traffic.
func (s *Store) Provision(ctx context.Context, acct ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = &account{id: acct.ID, balance: acct.Balance, limit: acct.Limit}
	return nil
}

func (s *Store) Close() error { return nil }

var _ ledger.Store = (*Store)(nil)
