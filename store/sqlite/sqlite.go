/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Durable single-node storage. The same patterns apply to PostgreSQL
  (see store/postgres) - only SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches the transactions table. The only
  UPDATE in this package is the conditional balance write in SettleIf.

SETTLEMENT ATOMICITY:
  SettleIf runs one SQL transaction:
    1. UPDATE accounts SET balance = new
       WHERE id = ? AND balance = expected AND new >= -credit_limit
    2. If no row changed: re-read the row to tell a CAS conflict
       (rollback, report false) from a limit-guard refusal or a missing
       account (rollback, report the error)
    3. INSERT the transaction record
    4. COMMIT
  The balance guard in the WHERE clause is defense in depth; the engine
  has already decided acceptance.

WAL MODE:
  Opened with WAL so readers don't block behind the single writer, plus
  a busy timeout for writer contention.

USAGE:
  store, err := sqlite.New("./data/ledger.db")   // or ":memory:"
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/ledger-engine/ledger"
)

// timeLayout keeps the fractional seconds fixed-width. occurred_at is a
// TEXT column ordered lexicographically; RFC3339Nano strips trailing
// zeros and would sort "…00.12Z" after "…00.123Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every caller sees the same data.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY,
		balance INTEGER NOT NULL,
		credit_limit INTEGER NOT NULL CHECK (credit_limit >= 0),
		CHECK (balance >= -credit_limit)
	);

	-- Append-only settled-transaction log
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	);

	-- Hot path: recent-N per account, newest first
	CREATE INDEX IF NOT EXISTS idx_transactions_account_occurred
		ON transactions(account_id, occurred_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Account returns the account row, or ledger.ErrAccountNotFound.
func (s *Store) Account(ctx context.Context, id int64) (ledger.Account, error) {
	var a ledger.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance, credit_limit FROM accounts WHERE id = ?`, id,
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
// one SQL transaction. Returns (false, nil) when the balance no longer
// equals expected.
func (s *Store) SettleIf(ctx context.Context, id int64, expected, updated int64, tx ledger.Transaction) (bool, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		`UPDATE accounts SET balance = ?
		 WHERE id = ? AND balance = ? AND ? >= -credit_limit`,
		updated, id, expected, updated)
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
			`SELECT balance, credit_limit FROM accounts WHERE id = ?`, id,
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
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, tx.Amount, string(tx.Kind), tx.Description,
		tx.OccurredAt.UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("failed to append transaction: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}

// Recent returns up to n transactions for the account, newest first.
// Ties on occurred_at fall back to insertion order via rowid.
func (s *Store) Recent(ctx context.Context, id int64, n int) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, amount, kind, description, occurred_at
		 FROM transactions
		 WHERE account_id = ?
		 ORDER BY occurred_at DESC, rowid DESC
		 LIMIT ?`, id, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var kind, occurredAt string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &kind, &tx.Description, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Kind = ledger.Kind(kind)
		tx.OccurredAt, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse occurred_at: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Provision creates or replaces an account row.
func (s *Store) Provision(ctx context.Context, a ledger.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance, credit_limit) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET balance = excluded.balance, credit_limit = excluded.credit_limit`,
		a.ID, a.Balance, a.Limit)
	if err != nil {
		return fmt.Errorf("failed to provision account %d: %w", a.ID, err)
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
