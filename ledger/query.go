package ledger

import (
	"context"
	"time"
)

// ExtractLimit is how many recent transactions the extract view carries.
const ExtractLimit = 10

// Query is the read-only side: it composes the extract view from the
// account store and the transaction log, taking no locks beyond what the
// reads themselves require.
//
// Under high concurrency the balance and the transaction list may be
// read at slightly different instants (read skew); each value
// individually always reflects a fully settled state.
type Query struct {
	store Store
}

func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// Extract returns the current balance/limit plus the most recent
// transactions, newest first. Returns ErrAccountNotFound for an
// unprovisioned account.
func (q *Query) Extract(ctx context.Context, accountID int64) (Extract, error) {
	acct, err := q.store.Account(ctx, accountID)
	if err != nil {
		return Extract{}, err
	}

	txs, err := q.store.Recent(ctx, accountID, ExtractLimit)
	if err != nil {
		return Extract{}, err
	}

	return Extract{
		Balance:      acct.Balance,
		Limit:        acct.Limit,
		ComputedAt:   time.Now().UTC(),
		Transactions: txs,
	}, nil
}
