package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T, accounts ...ledger.Account) (*ledger.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, a := range accounts {
		require.NoError(t, store.Provision(context.Background(), a))
	}
	return ledger.NewEngine(store, nil), store
}

func debit(t *testing.T, amount int64) ledger.Transaction {
	t.Helper()
	tx, err := ledger.NewTransaction("d", amount, "debit")
	require.NoError(t, err)
	return tx
}

func credit(t *testing.T, amount int64) ledger.Transaction {
	t.Helper()
	tx, err := ledger.NewTransaction("c", amount, "credit")
	require.NoError(t, err)
	return tx
}

// flakyStore injects CAS conflicts ahead of a real store.
type flakyStore struct {
	ledger.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (f *flakyStore) SettleIf(ctx context.Context, id int64, expected, updated int64, tx ledger.Transaction) (bool, error) {
	f.mu.Lock()
	f.calls++
	conflict := f.calls <= f.conflicts
	f.mu.Unlock()

	if conflict {
		return false, nil
	}
	return f.Store.SettleIf(ctx, id, expected, updated, tx)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestApply_DebitSettles(t *testing.T) {
	// GIVEN: account {balance: 0, limit: 1000}
	// WHEN: applying a debit of 500
	// THEN: accepted, balance -500, one log entry with engine-assigned fields

	engine, store := newTestEngine(t, ledger.Account{ID: 1, Balance: 0, Limit: 1000})
	ctx := context.Background()

	s, err := engine.Apply(ctx, 1, debit(t, 500))
	require.NoError(t, err)

	assert.Equal(t, int64(-500), s.Balance)
	assert.Equal(t, int64(1000), s.Limit)
	assert.NotEmpty(t, s.Transaction.ID)
	assert.Equal(t, int64(1), s.Transaction.AccountID)
	assert.False(t, s.Transaction.OccurredAt.IsZero())

	txs, err := store.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, s.Transaction.ID, txs[0].ID)
}

func TestApply_DebitThenEqualCredit_RoundTrip(t *testing.T) {
	// GIVEN: account at balance 0
	// WHEN: debit 700 then credit 700
	// THEN: balance returns to its prior value

	engine, _ := newTestEngine(t, ledger.Account{ID: 1, Balance: 0, Limit: 1000})
	ctx := context.Background()

	s, err := engine.Apply(ctx, 1, debit(t, 700))
	require.NoError(t, err)
	assert.Equal(t, int64(-700), s.Balance)

	s, err = engine.Apply(ctx, 1, credit(t, 700))
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Balance)
}

func TestApply_InvariantViolation_Rejected(t *testing.T) {
	// GIVEN: account {balance: 0, limit: 1000}, debit 500 already settled
	// WHEN: a further debit of 600 (-500-600 = -1100 < -1000)
	// THEN: rejected, balance stays -500, no log entry added

	engine, store := newTestEngine(t, ledger.Account{ID: 1, Balance: 0, Limit: 1000})
	ctx := context.Background()

	_, err := engine.Apply(ctx, 1, debit(t, 500))
	require.NoError(t, err)

	_, err = engine.Apply(ctx, 1, debit(t, 600))
	assert.True(t, ledger.IsInvariantViolation(err))

	var violation *ledger.InvariantViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, int64(-500), violation.Balance)
	assert.Equal(t, int64(600), violation.Amount)

	acct, err := store.Account(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-500), acct.Balance)

	txs, err := store.Recent(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "rejected transaction must leave no trace")
}

func TestApply_DebitToExactLimit_Accepted(t *testing.T) {
	// balance == -limit is the boundary and still satisfies the invariant

	engine, _ := newTestEngine(t, ledger.Account{ID: 1, Balance: 0, Limit: 1000})

	s, err := engine.Apply(context.Background(), 1, debit(t, 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), s.Balance)
}

func TestApply_UnknownAccount_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Apply(context.Background(), 42, debit(t, 100))
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestApply_ConcurrentDebits_AtMostOneAccepted(t *testing.T) {
	// GIVEN: account {balance: 0, limit: 1000}
	// WHEN: two concurrent debits of 600 each (both would yield -1200)
	// THEN: exactly one accepted, balance -600, one log entry

	engine, store := newTestEngine(t, ledger.Account{ID: 1, Balance: 0, Limit: 1000})
	ctx := context.Background()
	tx := debit(t, 600)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Apply(ctx, 1, tx)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var accepted, rejected int
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case ledger.IsInvariantViolation(err):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)

	acct, err := store.Account(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-600), acct.Balance)

	txs, err := store.Recent(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "the rejected debit must leave no log entry")
}

func TestApply_ConcurrentSubmitters_InvariantHolds(t *testing.T) {
	// GIVEN: account {balance: 0, limit: 1000} and 50 concurrent debits of 100
	// THEN: exactly 10 are accepted (any more would breach the limit) and
	// the final balance equals the serial effect of the accepted subset

	engine, store := newTestEngine(t, ledger.Account{ID: 1, Balance: 0, Limit: 1000})
	ctx := context.Background()

	const submitters = 50
	tx := debit(t, 100)

	results := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Apply(ctx, 1, tx)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var accepted int
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case ledger.IsInvariantViolation(err):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, accepted)

	acct, err := store.Account(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), acct.Balance)
	assert.GreaterOrEqual(t, acct.Balance, -acct.Limit)

	txs, err := store.Recent(ctx, 1, submitters)
	require.NoError(t, err)
	assert.Len(t, txs, accepted)
}

func TestApply_IndependentAccounts_NoCrossBlocking(t *testing.T) {
	// Settlements on different accounts proceed independently; every one
	// of them must be accepted.

	engine, store := newTestEngine(t,
		ledger.Account{ID: 1, Balance: 0, Limit: 1000},
		ledger.Account{ID: 2, Balance: 0, Limit: 1000},
	)
	ctx := context.Background()
	tx := debit(t, 100)

	var wg sync.WaitGroup
	for _, id := range []int64{1, 2} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := engine.Apply(ctx, id, tx)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []int64{1, 2} {
		acct, err := store.Account(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(-500), acct.Balance)
	}
}

// =============================================================================
// CAS RETRY
// =============================================================================

func TestApply_RetriesOnConflict(t *testing.T) {
	// GIVEN: a store that reports two CAS conflicts before accepting
	// THEN: the settlement still succeeds, on a fresh read each time

	store := memory.New()
	require.NoError(t, store.Provision(context.Background(), ledger.Account{ID: 1, Balance: 0, Limit: 1000}))
	flaky := &flakyStore{Store: store, conflicts: 2}
	engine := ledger.NewEngine(flaky, nil)

	s, err := engine.Apply(context.Background(), 1, debit(t, 500))
	require.NoError(t, err)
	assert.Equal(t, int64(-500), s.Balance)
	assert.Equal(t, 3, flaky.calls)
}

func TestApply_RetryBudgetExhausted(t *testing.T) {
	// A store that never stops conflicting surfaces as a transient
	// failure, with no effect on the account.

	store := memory.New()
	require.NoError(t, store.Provision(context.Background(), ledger.Account{ID: 1, Balance: 0, Limit: 1000}))
	flaky := &flakyStore{Store: store, conflicts: 1 << 30}
	engine := ledger.NewEngine(flaky, nil)

	_, err := engine.Apply(context.Background(), 1, debit(t, 500))
	assert.ErrorIs(t, err, ledger.ErrTooMuchContention)

	acct, err := store.Account(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance)
}
