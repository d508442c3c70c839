package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"flightdeck/internal/logger"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMemory_DebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewMemory("player-1", d("100"), nil)

	t.Run("debit within balance", func(t *testing.T) {
		balance, err := l.Debit(ctx, d("30.50"))
		if err != nil {
			t.Fatalf("Debit() error = %v", err)
		}
		if !balance.Equal(d("69.50")) {
			t.Errorf("Debit() balance = %v, want 69.50", balance)
		}
	})

	t.Run("debit over balance leaves it untouched", func(t *testing.T) {
		_, err := l.Debit(ctx, d("1000"))
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("Debit() error = %v, want ErrInsufficientFunds", err)
		}
		balance, _ := l.Balance(ctx)
		if !balance.Equal(d("69.50")) {
			t.Errorf("balance = %v, want 69.50", balance)
		}
	})

	t.Run("credit", func(t *testing.T) {
		balance, err := l.Credit(ctx, d("0.5"))
		if err != nil {
			t.Fatalf("Credit() error = %v", err)
		}
		if !balance.Equal(d("70")) {
			t.Errorf("Credit() balance = %v, want 70", balance)
		}
	})

	t.Run("non-positive amounts rejected", func(t *testing.T) {
		if _, err := l.Debit(ctx, d("0")); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Debit(0) error = %v, want ErrInvalidAmount", err)
		}
		if _, err := l.Credit(ctx, d("-5")); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(-5) error = %v, want ErrInvalidAmount", err)
		}
	})
}

func TestMemory_ConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	l := NewMemory("player-1", d("50"), nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, d("1")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 50 {
		t.Errorf("succeeded debits = %d, want 50", succeeded)
	}
	balance, _ := l.Balance(ctx)
	if !balance.IsZero() {
		t.Errorf("balance = %v, want 0", balance)
	}
}

func TestMemory_RecordTransaction(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()
	l := NewMemory("player-1", d("100"), journal)

	balance, _ := l.Debit(ctx, d("10"))
	if err := l.RecordTransaction(ctx, KindBet, d("-10"), balance); err != nil {
		t.Fatalf("RecordTransaction() error = %v", err)
	}
	balance, _ = l.Credit(ctx, d("25"))
	if err := l.RecordTransaction(ctx, KindPayout, d("25"), balance); err != nil {
		t.Fatalf("RecordTransaction() error = %v", err)
	}

	txs, err := journal.Transactions(ctx, "player-1", 10)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(Transactions()) = %d, want 2", len(txs))
	}
	if txs[0].Kind != KindPayout || txs[0].Description != "Aviator Payout" {
		t.Errorf("newest entry = %+v, want payout", txs[0])
	}
	if !txs[0].BalanceAfter.Equal(d("115")) {
		t.Errorf("BalanceAfter = %v, want 115", txs[0].BalanceAfter)
	}
	if txs[1].Kind != KindBet || !txs[1].Amount.Equal(d("-10")) {
		t.Errorf("oldest entry = %+v, want bet of -10", txs[1])
	}
}

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()
	l := NewMemory("player-2", decimal.Zero, journal)

	if _, err := Deposit(ctx, l, d("40")); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if _, err := Withdraw(ctx, l, d("50")); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Withdraw() error = %v, want ErrInsufficientFunds", err)
	}
	balance, err := Withdraw(ctx, l, d("15"))
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if !balance.Equal(d("25")) {
		t.Errorf("balance = %v, want 25", balance)
	}

	txs, _ := journal.Transactions(ctx, "player-2", 0)
	if len(txs) != 2 {
		t.Fatalf("len(Transactions()) = %d, want 2 (failed withdrawal is not journaled)", len(txs))
	}
	if txs[0].Kind != KindWithdrawal || !txs[0].Amount.Equal(d("-15")) {
		t.Errorf("newest entry = %+v, want withdrawal of -15", txs[0])
	}
}

func TestDepositWithdraw_JournalFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = prev })

	ctx := context.Background()
	down := JournalFunc(func(ctx context.Context, tx Transaction) error {
		return errors.New("journal unavailable")
	})
	l := NewMemory("player-3", d("10"), down)

	balance, err := Deposit(ctx, l, d("5"))
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if !balance.Equal(d("15")) {
		t.Errorf("Deposit() balance = %v, want 15", balance)
	}
	if balance, err = Withdraw(ctx, l, d("3")); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if !balance.Equal(d("12")) {
		t.Errorf("Withdraw() balance = %v, want 12", balance)
	}

	entries := logs.FilterMessage("record transaction failed").All()
	if len(entries) != 2 {
		t.Fatalf("logged %d journal failures, want 2", len(entries))
	}
	if kind := entries[0].ContextMap()["kind"]; kind != string(KindDeposit) {
		t.Errorf("first failure kind = %v, want deposit", kind)
	}
	if kind := entries[1].ContextMap()["kind"]; kind != string(KindWithdrawal) {
		t.Errorf("second failure kind = %v, want withdrawal", kind)
	}
}

func TestMemoryJournal_Limit(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()

	for i := 1; i <= 5; i++ {
		journal.Record(ctx, NewTransaction("p", KindDeposit, decimal.NewFromInt(int64(i)), decimal.NewFromInt(int64(i))))
	}

	txs, _ := journal.Transactions(ctx, "p", 3)
	if len(txs) != 3 {
		t.Fatalf("len = %d, want 3", len(txs))
	}
	if !txs[0].Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("first = %v, want newest (5)", txs[0].Amount)
	}

	other, _ := journal.Transactions(ctx, "unknown", 3)
	if len(other) != 0 {
		t.Errorf("unknown account returned %d entries", len(other))
	}
}

func TestUnits(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    int64
		wantErr bool
	}{
		{name: "whole", amount: "10", want: 100000},
		{name: "two places", amount: "10.25", want: 102500},
		{name: "four places", amount: "0.0001", want: 1},
		{name: "too precise", amount: "0.00001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toUnits(d(tt.amount))
			if (err != nil) != tt.wantErr {
				t.Fatalf("toUnits() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("toUnits() = %v, want %v", got, tt.want)
			}
			if err == nil && !fromUnits(got).Equal(d(tt.amount)) {
				t.Errorf("fromUnits(%d) = %v, want %v", got, fromUnits(got), tt.amount)
			}
		})
	}
}
