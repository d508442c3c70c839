package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flightdeck/internal/ledger"
)

type WagerState string

const (
	WagerQueued    WagerState = "QUEUED"
	WagerActive    WagerState = "ACTIVE"
	WagerCashedOut WagerState = "CASHED_OUT"
	WagerLost      WagerState = "LOST"
	WagerCancelled WagerState = "CANCELLED"
)

type Owner string

const (
	OwnerPlayer   Owner = "player"
	OwnerAutoplay Owner = "autoplay"
)

// Reasons a wager ends up Cancelled.
const (
	CancelByPlayer         = "player"
	CancelInsufficientFund = "insufficient_funds"
	CancelLedgerError      = "ledger_error"
	CancelAutoplayStopped  = "autoplay_stopped"
)

// maximum resolved wagers kept for display after their round is gone
const wagerHistoryCap = 50

type Wager struct {
	ID             string
	Owner          Owner
	Stake          decimal.Decimal
	AutoCashout    decimal.Decimal
	State          WagerState
	RoundID        string
	ExitMultiplier decimal.Decimal
	Payout         decimal.Decimal
	CancelReason   string
	QueuedAt       time.Time
	ResolvedAt     time.Time

	// set once an auto-cashout credit has failed; the target is not tried again
	disarmed bool
}

func (w *Wager) resolved() bool {
	switch w.State {
	case WagerCashedOut, WagerLost, WagerCancelled:
		return true
	}
	return false
}

// NetProfit is payout minus stake for a wager that reached the round, and
// zero for one that never left the queue.
func (w *Wager) NetProfit() decimal.Decimal {
	switch w.State {
	case WagerCashedOut:
		return w.Payout.Sub(w.Stake)
	case WagerLost:
		return w.Stake.Neg()
	}
	return decimal.Zero
}

// wagerBook owns every wager of one session and moves their funds through
// the ledger. Callers hold the session lock.
type wagerBook struct {
	ledger  ledger.Ledger
	current []*Wager
	history []*Wager
}

func newWagerBook(l ledger.Ledger) *wagerBook {
	return &wagerBook{ledger: l}
}

func (b *wagerBook) find(id string) (*Wager, bool) {
	for _, w := range b.current {
		if w.ID == id {
			return w, true
		}
	}
	for _, w := range b.history {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

func (b *wagerBook) queuedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, w := range b.current {
		if w.State == WagerQueued {
			total = total.Add(w.Stake)
		}
	}
	return total
}

// available is the balance not already promised to queued wagers.
func (b *wagerBook) available(ctx context.Context) (decimal.Decimal, error) {
	balance, err := b.ledger.Balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Sub(b.queuedTotal()), nil
}

func (b *wagerBook) queue(ctx context.Context, owner Owner, stake, autoCashout decimal.Decimal, now time.Time) (*Wager, error) {
	available, err := b.available(ctx)
	if err != nil {
		return nil, err
	}
	if available.LessThan(stake) {
		return nil, fmt.Errorf("%w: stake %s, available %s", ErrInsufficientFunds, stake, available)
	}

	w := &Wager{
		ID:          uuid.New().String(),
		Owner:       owner,
		Stake:       stake,
		AutoCashout: autoCashout,
		State:       WagerQueued,
		QueuedAt:    now,
	}
	b.current = append(b.current, w)
	return w, nil
}

func (b *wagerBook) cancel(w *Wager, reason string, now time.Time) error {
	if w.State != WagerQueued {
		return ErrNotCancellable
	}
	w.State = WagerCancelled
	w.CancelReason = reason
	w.ResolvedAt = now
	return nil
}

// commit moves a queued wager into roundID, debiting its stake. A wager the
// ledger cannot fund is cancelled instead; committed reports which happened.
// The returned balance is valid only when committed is true.
func (b *wagerBook) commit(ctx context.Context, w *Wager, roundID string, now time.Time) (committed bool, balance decimal.Decimal, err error) {
	if w.State != WagerQueued {
		return false, decimal.Zero, nil
	}

	balance, err = b.ledger.Debit(ctx, w.Stake)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		b.cancel(w, CancelInsufficientFund, now)
		return false, decimal.Zero, nil
	}
	if err != nil {
		b.cancel(w, CancelLedgerError, now)
		return false, decimal.Zero, fmt.Errorf("debit wager %s: %w", w.ID, err)
	}

	w.State = WagerActive
	w.RoundID = roundID
	return true, balance, nil
}

// cashOut credits stake*exit and only then marks the wager cashed out, so a
// failed credit leaves it active.
func (b *wagerBook) cashOut(ctx context.Context, w *Wager, exit decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if w.State != WagerActive {
		return decimal.Zero, ErrNotActive
	}

	payout := w.Stake.Mul(exit)
	balance, err := b.ledger.Credit(ctx, payout)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit payout for wager %s: %w", w.ID, err)
	}

	w.State = WagerCashedOut
	w.ExitMultiplier = exit
	w.Payout = payout
	w.ResolvedAt = now
	return balance, nil
}

// settle marks every still-active wager of roundID lost and returns all the
// wagers that played in the round.
func (b *wagerBook) settle(roundID string, now time.Time) []*Wager {
	var played []*Wager
	for _, w := range b.current {
		if w.RoundID != roundID {
			continue
		}
		if w.State == WagerActive {
			w.State = WagerLost
			w.ResolvedAt = now
		}
		played = append(played, w)
	}
	return played
}

func (b *wagerBook) activeIn(roundID string) []*Wager {
	var out []*Wager
	for _, w := range b.current {
		if w.RoundID == roundID && w.State == WagerActive {
			out = append(out, w)
		}
	}
	return out
}

func (b *wagerBook) queued() []*Wager {
	var out []*Wager
	for _, w := range b.current {
		if w.State == WagerQueued {
			out = append(out, w)
		}
	}
	return out
}

// prune moves resolved wagers out of the current list when a new round opens.
func (b *wagerBook) prune() {
	kept := b.current[:0]
	for _, w := range b.current {
		if w.resolved() {
			b.history = append(b.history, w)
		} else {
			kept = append(kept, w)
		}
	}
	b.current = kept
	if over := len(b.history) - wagerHistoryCap; over > 0 {
		b.history = append([]*Wager(nil), b.history[over:]...)
	}
}
