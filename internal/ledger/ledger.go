// Package ledger is the balance and transaction store consulted by the
// round engine. The engine never owns balances; every debit and credit goes
// through a Ledger, and every mutation is followed by a journal record.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flightdeck/internal/logger"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type Kind string

const (
	KindBet        Kind = "bet"
	KindPayout     Kind = "payout"
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindBonus      Kind = "bonus"
)

// Transaction is one journal line. Amount is signed from the player's point
// of view: bets and withdrawals are negative.
type Transaction struct {
	ID           string          `json:"id"`
	Account      string          `json:"account"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Ledger interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	// Debit removes amount atomically and returns the resulting balance, or
	// ErrInsufficientFunds without touching the balance.
	Debit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	// RecordTransaction is fire-and-forget from the caller's side. It must be
	// called after the balance mutation it describes.
	RecordTransaction(ctx context.Context, kind Kind, amount, balanceAfter decimal.Decimal) error
}

// Journal stores transaction history.
type Journal interface {
	Record(ctx context.Context, tx Transaction) error
}

// Statement reads back an account's history, newest first.
type Statement interface {
	Transactions(ctx context.Context, account string, limit int) ([]Transaction, error)
}

// NewTransaction fills in the id, description and timestamp of a journal line.
func NewTransaction(account string, kind Kind, amount, balanceAfter decimal.Decimal) Transaction {
	return Transaction{
		ID:           uuid.New().String(),
		Account:      account,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Description:  Describe(kind),
		CreatedAt:    time.Now().UTC(),
	}
}

// JournalFunc adapts a function to Journal.
type JournalFunc func(ctx context.Context, tx Transaction) error

func (f JournalFunc) Record(ctx context.Context, tx Transaction) error {
	return f(ctx, tx)
}

// Describe returns the statement line shown for a kind.
func Describe(kind Kind) string {
	switch kind {
	case KindBet:
		return "Aviator Bet"
	case KindPayout:
		return "Aviator Payout"
	case KindDeposit:
		return "Deposit"
	case KindWithdrawal:
		return "Withdrawal"
	case KindBonus:
		return "Bonus"
	}
	return string(kind)
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Deposit credits amount and journals it. A journal failure is logged; the
// credit stands.
func Deposit(ctx context.Context, l Ledger, amount decimal.Decimal) (decimal.Decimal, error) {
	balance, err := l.Credit(ctx, amount)
	if err != nil {
		return decimal.Zero, err
	}
	record(ctx, l, KindDeposit, amount, balance)
	return balance, nil
}

// Withdraw debits amount and journals it.
func Withdraw(ctx context.Context, l Ledger, amount decimal.Decimal) (decimal.Decimal, error) {
	balance, err := l.Debit(ctx, amount)
	if err != nil {
		return decimal.Zero, err
	}
	record(ctx, l, KindWithdrawal, amount.Neg(), balance)
	return balance, nil
}

func record(ctx context.Context, l Ledger, kind Kind, amount, balance decimal.Decimal) {
	if err := l.RecordTransaction(ctx, kind, amount, balance); err != nil {
		logger.Named("ledger").Warn("record transaction failed",
			zap.String("kind", string(kind)),
			zap.String("amount", amount.String()),
			zap.Error(err))
	}
}
