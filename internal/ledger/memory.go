package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process ledger for one account.
type Memory struct {
	account string
	journal Journal

	mu      sync.Mutex
	balance decimal.Decimal
}

func NewMemory(account string, opening decimal.Decimal, journal Journal) *Memory {
	return &Memory{
		account: account,
		journal: journal,
		balance: opening,
	}
}

func (m *Memory) Balance(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *Memory) Debit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balance.LessThan(amount) {
		return m.balance, ErrInsufficientFunds
	}
	m.balance = m.balance.Sub(amount)
	return m.balance, nil
}

func (m *Memory) Credit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validAmount(amount); err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.balance = m.balance.Add(amount)
	return m.balance, nil
}

func (m *Memory) RecordTransaction(ctx context.Context, kind Kind, amount, balanceAfter decimal.Decimal) error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Record(ctx, NewTransaction(m.account, kind, amount, balanceAfter))
}

// MemoryJournal keeps every account's history in process.
type MemoryJournal struct {
	mu       sync.RWMutex
	accounts map[string][]Transaction
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{accounts: make(map[string][]Transaction)}
}

func (j *MemoryJournal) Record(ctx context.Context, tx Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.accounts[tx.Account] = append(j.accounts[tx.Account], tx)
	return nil
}

func (j *MemoryJournal) Transactions(ctx context.Context, account string, limit int) ([]Transaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	history := j.accounts[account]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]Transaction, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}
