package database

import (
	"context"
	"database/sql"
	"fmt"

	"flightdeck/internal/ledger"
	"flightdeck/internal/logger"
)

const defaultStatementLimit = 50

// Journal persists ledger transactions to the transactions table.
type Journal struct {
	db *sql.DB
	w  *writer[ledger.Transaction]
}

func NewJournal(db *sql.DB, buffer int) *Journal {
	j := &Journal{db: db}
	j.w = newWriter(buffer, logger.Named("db").With(zapTable("transactions")), j.insert)
	return j
}

// Record queues tx for insertion and returns immediately.
func (j *Journal) Record(ctx context.Context, tx ledger.Transaction) error {
	return j.w.enqueue(tx)
}

func (j *Journal) insert(ctx context.Context, tx ledger.Transaction) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transactions (id, account, kind, amount, balance_after, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.Account, string(tx.Kind), tx.Amount, tx.BalanceAfter, tx.Description, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// Transactions returns an account's history, newest first.
func (j *Journal) Transactions(ctx context.Context, account string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = defaultStatementLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, account, kind, amount, balance_after, description, created_at
		 FROM transactions
		 WHERE account = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var kind string
		if err := rows.Scan(&tx.ID, &tx.Account, &kind, &tx.Amount, &tx.BalanceAfter, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Kind = ledger.Kind(kind)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Close flushes queued transactions.
func (j *Journal) Close() {
	j.w.Close()
}
