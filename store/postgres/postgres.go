/*
Package postgres provides a PostgreSQL-backed implementation of
ledger.Store using lib/pq.

The settlement shape is identical to the sqlite store: one database
transaction runs a conditional UPDATE (rows-affected = CAS outcome,
guarded by the overdraft limit as defense in depth) followed by the log
INSERT, committed together or not at all. A BIGSERIAL column breaks
occurred_at ties in insertion order for the recent-N query.
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/warp/ledger-engine/ledger"
)

// Store implements ledger.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects to the database, applies the pool size and migrates the
// schema. The URL is a standard postgres connection string.
func New(databaseURL string, poolSize int) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT PRIMARY KEY,
		balance BIGINT NOT NULL,
		credit_limit BIGINT NOT NULL CHECK (credit_limit >= 0),
		CHECK (balance >= -credit_limit)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount BIGINT NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_occurred
		ON transactions(account_id, occurred_at DESC, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Account returns the account row, or ledger.ErrAccountNotFound.
func (s *Store) Account(ctx context.Context, id int64) (ledger.Account, error) {
	var a ledger.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance, credit_limit FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Balance, &a.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	return a, nil
}

// SettleIf performs the conditional balance write and the log append as
// one database transaction.
func (s *Store) SettleIf(ctx context.Context, id int64, expected, updated int64, tx ledger.Transaction) (bool, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1
		 WHERE id = $2 AND balance = $3 AND $1 >= -credit_limit`,
		updated, id, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update balance: %w", err)
	}
	if n == 0 {
		// No row changed: either the CAS lost (balance moved since the
		// caller read it) or the limit guard refused the write. Only the
		// former reports a retryable conflict.
		var balance, limit int64
		err := sqlTx.QueryRowContext(ctx,
			`SELECT balance, credit_limit FROM accounts WHERE id = $1`, id,
		).Scan(&balance, &limit)
		if errors.Is(err, sql.ErrNoRows) {
			return false, ledger.ErrAccountNotFound
		}
		if err != nil {
			return false, fmt.Errorf("failed to load account %d: %w", id, err)
		}
		if balance == expected {
			return false, fmt.Errorf("account %d: refusing balance %d below -%d", id, updated, limit)
		}
		return false, nil
	}

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, amount, kind, description, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, tx.AccountID, tx.Amount, string(tx.Kind), tx.Description, tx.OccurredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to append transaction: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}

// Recent returns up to n transactions for the account, newest first.
func (s *Store) Recent(ctx context.Context, id int64, n int) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, amount, kind, description, occurred_at
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY occurred_at DESC, seq DESC
		 LIMIT $2`, id, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var kind string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &kind, &tx.Description, &tx.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Kind = ledger.Kind(kind)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Provision creates or replaces an account row.
func (s *Store) Provision(ctx context.Context, a ledger.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance, credit_limit) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance, credit_limit = EXCLUDED.credit_limit`,
		a.ID, a.Balance, a.Limit)
	if err != nil {
		return fmt.Errorf("failed to provision account %d: %w", a.ID, err)
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
