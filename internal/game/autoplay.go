package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StopManual            = "manual"
	StopRoundsReached     = "rounds_reached"
	StopProfitTarget      = "profit_target"
	StopLossLimit         = "loss_limit"
	StopInsufficientFunds = "insufficient_funds"
	StopWagerCancelled    = "wager_cancelled"
	StopLedgerError       = "ledger_error"
)

// AutoplayConfig bounds an autoplay run. Zero Rounds, ProfitStop or LossStop
// mean unbounded; zero AutoCashout means the player cashes out manually.
type AutoplayConfig struct {
	Stake       decimal.Decimal `json:"stake"`
	Rounds      int             `json:"rounds"`
	ProfitStop  decimal.Decimal `json:"profit_stop"`
	LossStop    decimal.Decimal `json:"loss_stop"`
	AutoCashout decimal.Decimal `json:"auto_cashout,omitempty"`
}

// AutoplaySession supervises a run of consecutive rounds. Counters move only
// when a round the session bet on settles.
type AutoplaySession struct {
	Config       AutoplayConfig
	RoundsPlayed int
	NetProfit    decimal.Decimal
	StartedAt    time.Time

	wagerID string
}

// record folds one settled wager into the counters and reports whether a
// stop condition fired.
func (a *AutoplaySession) record(w *Wager) (stop bool, reason string) {
	a.RoundsPlayed++
	a.NetProfit = a.NetProfit.Add(w.NetProfit())

	cfg := a.Config
	switch {
	case cfg.Rounds > 0 && a.RoundsPlayed >= cfg.Rounds:
		return true, StopRoundsReached
	case cfg.ProfitStop.IsPositive() && a.NetProfit.GreaterThanOrEqual(cfg.ProfitStop):
		return true, StopProfitTarget
	case cfg.LossStop.IsPositive() && a.NetProfit.Neg().GreaterThanOrEqual(cfg.LossStop):
		return true, StopLossLimit
	}
	return false, ""
}

func (a *AutoplaySession) status(active bool, reason string) AutoplayStatus {
	return AutoplayStatus{
		Active:       active,
		Config:       a.Config,
		RoundsPlayed: a.RoundsPlayed,
		NetProfit:    a.NetProfit,
		StopReason:   reason,
	}
}

// StartAutoplay opens an autoplay run and queues its first wager. Nothing
// starts if that first wager cannot be funded.
func (s *Session) StartAutoplay(ctx context.Context, cfg AutoplayConfig) (AutoplayStatus, error) {
	s.mu.Lock()
	defer s.unlock()

	if err := s.catchUpLocked(ctx); err != nil {
		return AutoplayStatus{}, err
	}
	if s.autoplay != nil {
		return s.autoplay.status(true, ""), ErrAutoplayActive
	}
	if err := s.validateStake(cfg.Stake); err != nil {
		return AutoplayStatus{}, err
	}
	if err := validateAutoCashout(cfg.AutoCashout); err != nil {
		return AutoplayStatus{}, err
	}
	if cfg.Rounds < 0 || cfg.ProfitStop.IsNegative() || cfg.LossStop.IsNegative() {
		return AutoplayStatus{}, fmt.Errorf("%w: limits cannot be negative", ErrInvalidAutoplay)
	}

	w, err := s.queueLocked(ctx, OwnerAutoplay, cfg.Stake, cfg.AutoCashout)
	if err != nil {
		return AutoplayStatus{}, err
	}

	s.autoplay = &AutoplaySession{
		Config:    cfg,
		NetProfit: decimal.Zero,
		StartedAt: s.now,
		wagerID:   w.ID,
	}
	s.lastAutoplay = nil
	s.log.Info("autoplay started",
		zap.String("stake", cfg.Stake.String()),
		zap.Int("rounds", cfg.Rounds),
		zap.String("auto_cashout", cfg.AutoCashout.String()))

	return s.autoplay.status(true, ""), nil
}

// StopAutoplay ends the run. An active wager plays out; a queued one is
// withdrawn.
func (s *Session) StopAutoplay(ctx context.Context) (AutoplayStatus, error) {
	s.mu.Lock()
	defer s.unlock()

	if err := s.catchUpLocked(ctx); err != nil {
		return AutoplayStatus{}, err
	}
	if s.autoplay == nil {
		return AutoplayStatus{}, ErrAutoplayInactive
	}
	s.stopAutoplayLocked(StopManual)
	return *s.lastAutoplay, nil
}

func (s *Session) stopAutoplayLocked(reason string) {
	a := s.autoplay
	if a == nil {
		return
	}
	if w, ok := s.book.find(a.wagerID); ok && w.State == WagerQueued {
		s.book.cancel(w, CancelAutoplayStopped, s.now)
		s.emitWager(EventWagerCancelled, w)
	}

	s.autoplay = nil
	st := a.status(false, reason)
	s.lastAutoplay = &st
	s.emit(Event{Type: EventAutoplayStopped, Autoplay: &st})

	s.log.Info("autoplay stopped",
		zap.String("reason", reason),
		zap.Int("rounds_played", a.RoundsPlayed),
		zap.String("net_profit", a.NetProfit.String()))
}

// autoplaySettledLocked runs when a round settles. Rounds the run had no
// wager in do not count.
func (s *Session) autoplaySettledLocked(ctx context.Context, played []*Wager) error {
	a := s.autoplay
	if a == nil {
		return nil
	}

	var mine *Wager
	for _, w := range played {
		if w.ID == a.wagerID {
			mine = w
			break
		}
	}
	if mine == nil {
		return nil
	}

	if stop, reason := a.record(mine); stop {
		s.stopAutoplayLocked(reason)
		return nil
	}

	w, err := s.queueLocked(ctx, OwnerAutoplay, a.Config.Stake, a.Config.AutoCashout)
	if errors.Is(err, ErrInsufficientFunds) {
		s.stopAutoplayLocked(StopInsufficientFunds)
		return nil
	}
	if err != nil {
		s.stopAutoplayLocked(StopLedgerError)
		return fmt.Errorf("queue autoplay wager: %w", err)
	}
	a.wagerID = w.ID
	return nil
}

// autoplaySkippedLocked runs when a wager could not be funded at launch.
func (s *Session) autoplaySkippedLocked(w *Wager) {
	if s.autoplay == nil || s.autoplay.wagerID != w.ID {
		return
	}
	if w.CancelReason == CancelLedgerError {
		s.stopAutoplayLocked(StopLedgerError)
		return
	}
	s.stopAutoplayLocked(StopInsufficientFunds)
}

func (s *Session) autoplayStatusLocked() *AutoplayStatus {
	if s.autoplay != nil {
		st := s.autoplay.status(true, "")
		return &st
	}
	return s.lastAutoplay
}
