package game

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flightdeck/internal/ledger"
)

var errLedgerDown = errors.New("ledger unavailable")

// faultyLedger fails debits or credits on demand and counts credit attempts.
type faultyLedger struct {
	*ledger.Memory
	failDebit  atomic.Bool
	failCredit atomic.Bool
	credits    atomic.Int32
}

func (f *faultyLedger) Debit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if f.failDebit.Load() {
		return decimal.Zero, errLedgerDown
	}
	return f.Memory.Debit(ctx, amount)
}

func (f *faultyLedger) Credit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	f.credits.Add(1)
	if f.failCredit.Load() {
		return decimal.Zero, errLedgerDown
	}
	return f.Memory.Credit(ctx, amount)
}

// newFaultyRig is newRig with the session reading through a faultyLedger.
// rig.ledger still reports the real balance.
func newFaultyRig(t *testing.T, opening string, src OutcomeSource) (*testRig, *faultyLedger) {
	t.Helper()
	journal := ledger.NewMemoryJournal()
	mem := ledger.NewMemory("player-1", d(opening), journal)
	faulty := &faultyLedger{Memory: mem}
	rig := &testRig{
		clock:   &fakeClock{now: t0},
		ledger:  mem,
		journal: journal,
		events:  &recorder{},
	}

	s, err := NewSession(context.Background(), "player-1", DefaultConfig(), faulty,
		WithClock(rig.clock.Now), WithListener(rig.events), WithOutcomeSource(src))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	rig.session = s
	return rig, faulty
}

func TestSession_DebitFailureCancelsWager(t *testing.T) {
	rig, faulty := newFaultyRig(t, "100", sequence("2.00"))
	ctx := context.Background()

	w, err := rig.session.QueueWager(ctx, d("10"), decimal.Zero)
	if err != nil {
		t.Fatalf("QueueWager() error = %v", err)
	}
	faulty.failDebit.Store(true)

	err = rig.session.Advance(ctx, t0.Add(5*time.Second))
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("Advance() error = %v, want the ledger error", err)
	}
	if errors.Is(err, ErrEngineHalted) {
		t.Fatalf("Advance() halted the session: %v", err)
	}

	snap := rig.session.Snapshot()
	if snap.Phase != PhaseAscending {
		t.Errorf("phase = %s, want ASCENDING", snap.Phase)
	}
	got := snap.Wagers[0]
	if got.BetID != w.BetID || got.State != WagerCancelled || got.CancelReason != CancelLedgerError {
		t.Errorf("wager = %+v, want cancelled with %q", got, CancelLedgerError)
	}
	if b := rig.balance(t); !b.Equal(d("100")) {
		t.Errorf("balance = %v, want untouched 100", b)
	}
	if n := rig.events.count(EventWagerSkipped); n != 1 {
		t.Errorf("bet_skipped events = %d, want 1", n)
	}

	faulty.failDebit.Store(false)
	rig.untilSettled(t)
	if b := rig.balance(t); !b.Equal(d("100")) {
		t.Errorf("balance after settlement = %v, want 100", b)
	}
}

func TestSession_AutoplayStopsOnDebitFailure(t *testing.T) {
	rig, faulty := newFaultyRig(t, "100", sequence("3.50"))
	ctx := context.Background()

	if _, err := rig.session.StartAutoplay(ctx, autoplayConfig("10", "2.00")); err != nil {
		t.Fatalf("StartAutoplay() error = %v", err)
	}
	faulty.failDebit.Store(true)

	if err := rig.session.Advance(ctx, t0.Add(5*time.Second)); !errors.Is(err, errLedgerDown) {
		t.Fatalf("Advance() error = %v, want the ledger error", err)
	}

	status := rig.session.Snapshot().Autoplay
	if status == nil || status.Active || status.StopReason != StopLedgerError {
		t.Errorf("status = %+v, want stopped with %q", status, StopLedgerError)
	}
	if n := rig.events.count(EventAutoplayStopped); n != 1 {
		t.Errorf("autoplay_stopped events = %d, want 1", n)
	}

	// a stopped run does not queue again once the ledger recovers
	faulty.failDebit.Store(false)
	rig.playRound(t)
	if n := len(rig.session.Snapshot().Wagers); n != 0 {
		t.Errorf("wagers in next round = %d, want 0", n)
	}
}

func TestSession_ManualCashoutCreditFailure(t *testing.T) {
	rig, faulty := newFaultyRig(t, "100", sequence("3.50"))
	ctx := context.Background()

	w, err := rig.session.QueueWager(ctx, d("10"), decimal.Zero)
	if err != nil {
		t.Fatalf("QueueWager() error = %v", err)
	}
	rig.at(t, 5*time.Second)
	faulty.failCredit.Store(true)

	rig.clock.Set(t0.Add(13 * time.Second))
	got, err := rig.session.CashOut(ctx, w.BetID)
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("CashOut() error = %v, want the ledger error", err)
	}
	if got.State != WagerActive {
		t.Errorf("state after failed credit = %s, want ACTIVE", got.State)
	}

	rig.untilSettled(t)
	if s := rig.session.Snapshot().Wagers[0].State; s != WagerLost {
		t.Errorf("state = %s, want LOST", s)
	}
	if b := rig.balance(t); !b.Equal(d("90")) {
		t.Errorf("balance = %v, want 90", b)
	}
	if n := rig.events.count(EventCashedOut); n != 0 {
		t.Errorf("cashed_out events = %d, want 0", n)
	}
}

func TestSession_AutoCashoutCreditFailureIsNotRetried(t *testing.T) {
	rig, faulty := newFaultyRig(t, "100", sequence("50.00"))
	ctx := context.Background()

	if _, err := rig.session.QueueWager(ctx, d("10"), d("1.10")); err != nil {
		t.Fatalf("QueueWager() error = %v", err)
	}
	rig.at(t, 5*time.Second)
	faulty.failCredit.Store(true)

	failures := 0
	for offset := 5 * time.Second; rig.session.Snapshot().Phase != PhaseSettled; {
		if offset > 2*time.Minute {
			t.Fatal("round never settled")
		}
		offset += 100 * time.Millisecond
		if err := rig.session.Advance(ctx, t0.Add(offset)); err != nil {
			if !errors.Is(err, errLedgerDown) {
				t.Fatalf("Advance(+%v) error = %v", offset, err)
			}
			failures++
		}
	}

	if n := faulty.credits.Load(); n != 1 {
		t.Errorf("credit attempts = %d, want 1", n)
	}
	if failures != 1 {
		t.Errorf("failed ticks = %d, want 1", failures)
	}
	if s := rig.session.Snapshot().Wagers[0].State; s != WagerLost {
		t.Errorf("state = %s, want LOST", s)
	}
	if b := rig.balance(t); !b.Equal(d("90")) {
		t.Errorf("balance = %v, want 90", b)
	}
}
