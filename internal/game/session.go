package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flightdeck/internal/ledger"
	"flightdeck/internal/logger"
)

type Option func(*Session)

// WithClock replaces time.Now for actions that are not given an explicit
// instant.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.clock = now }
}

func WithOutcomeSource(src OutcomeSource) Option {
	return func(s *Session) { s.source = src }
}

func WithListener(l Listener) Option {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// WithSnapshotHandler is called by Run at every snapshot interval.
func WithSnapshotHandler(fn func(*Snapshot)) Option {
	return func(s *Session) { s.onSnapshot = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session runs the round cycle for one player. All state changes happen
// under mu; readers use the published snapshot and never block on it.
type Session struct {
	playerID string
	cfg      Config
	ledger   ledger.Ledger
	source   OutcomeSource
	clock    func() time.Time
	log      *zap.Logger

	listeners  []Listener
	onSnapshot func(*Snapshot)

	mu           sync.Mutex
	now          time.Time
	round        *Round
	rounds       int
	book         *wagerBook
	autoplay     *AutoplaySession
	lastAutoplay *AutoplayStatus
	balance      decimal.Decimal
	results      []RoundResult
	halted       error
	pending      []Event

	snapshot atomic.Pointer[Snapshot]
}

func NewSession(ctx context.Context, playerID string, cfg Config, l ledger.Ledger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	if l == nil {
		return nil, errors.New("session needs a ledger")
	}

	s := &Session{
		playerID: playerID,
		cfg:      cfg,
		ledger:   l,
		clock:    time.Now,
		book:     newWagerBook(l),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.source == nil {
		s.source = NewProvablyFairSource(cfg.Distribution(), "")
	}
	if s.log == nil {
		s.log = logger.Named("game")
	}
	s.log = s.log.With(zap.String("player_id", playerID))

	s.mu.Lock()
	s.now = s.clock()
	s.openRoundLocked(ctx, s.now)
	s.unlock()

	return s, nil
}

func (s *Session) PlayerID() string {
	return s.playerID
}

// Snapshot returns the last published state.
func (s *Session) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// History returns the most recent settled rounds, newest first.
func (s *Session) History() []RoundResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RoundResult(nil), s.results...)
}

// Run drives the session from a ticker until ctx is cancelled or the
// session halts.
func (s *Session) Run(ctx context.Context) error {
	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()
	snap := time.NewTicker(s.cfg.SnapshotInterval)
	defer snap.Stop()

	s.log.Debug("session loop started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("session loop stopped")
			return nil
		case now := <-tick.C:
			if err := s.Advance(ctx, now); err != nil {
				if errors.Is(err, ErrEngineHalted) {
					return err
				}
				s.log.Warn("advance failed", zap.Error(err))
			}
		case <-snap.C:
			if s.onSnapshot != nil {
				s.onSnapshot(s.Snapshot())
			}
		}
	}
}

// Advance applies every transition due at now. Any number of phases may be
// crossed in one call, so a late tick catches up instead of skipping work.
func (s *Session) Advance(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.unlock()

	if s.halted != nil {
		return s.halted
	}
	err := s.advanceLocked(ctx, now)
	if s.halted != nil {
		return s.halted
	}
	return err
}

// QueueWager places a wager on the next round to launch.
func (s *Session) QueueWager(ctx context.Context, stake, autoCashout decimal.Decimal) (WagerView, error) {
	s.mu.Lock()
	defer s.unlock()

	if err := s.catchUpLocked(ctx); err != nil {
		return WagerView{}, err
	}
	if err := s.validateStake(stake); err != nil {
		return WagerView{}, err
	}
	if err := validateAutoCashout(autoCashout); err != nil {
		return WagerView{}, err
	}

	w, err := s.queueLocked(ctx, OwnerPlayer, stake, autoCashout)
	if err != nil {
		return WagerView{}, err
	}
	return viewOf(w), nil
}

// CancelWager withdraws a wager that has not been committed yet.
func (s *Session) CancelWager(ctx context.Context, id string) (WagerView, error) {
	s.mu.Lock()
	defer s.unlock()

	if err := s.catchUpLocked(ctx); err != nil {
		return WagerView{}, err
	}
	w, ok := s.book.find(id)
	if !ok {
		return WagerView{}, ErrWagerNotFound
	}
	if err := s.book.cancel(w, CancelByPlayer, s.now); err != nil {
		return viewOf(w), err
	}
	s.emitWager(EventWagerCancelled, w)

	if s.autoplay != nil && s.autoplay.wagerID == w.ID {
		s.stopAutoplayLocked(StopWagerCancelled)
	}
	return viewOf(w), nil
}

// CashOut settles an active wager at the multiplier showing now.
func (s *Session) CashOut(ctx context.Context, id string) (WagerView, error) {
	s.mu.Lock()
	defer s.unlock()

	if err := s.catchUpLocked(ctx); err != nil {
		return WagerView{}, err
	}
	w, ok := s.book.find(id)
	if !ok {
		return WagerView{}, ErrWagerNotFound
	}

	r := s.round
	if r.Phase != PhaseAscending || w.State != WagerActive || w.RoundID != r.ID {
		return viewOf(w), ErrNotActive
	}
	exit := r.CurrentMultiplier
	if !exit.LessThan(r.terminal()) {
		return viewOf(w), s.haltLocked(fmt.Errorf("%w: round %s ascending at %s with terminal %s",
			ErrRoundIntegrityViolation, r.ID, exit, r.terminal()))
	}

	if err := s.cashOutLocked(ctx, w, exit); err != nil {
		return viewOf(w), err
	}
	return viewOf(w), nil
}

// SetClientSeed changes the seed mixed into future draws.
func (s *Session) SetClientSeed(seed string) error {
	if seed == "" {
		return errors.New("client seed cannot be empty")
	}
	seeder, ok := s.source.(ClientSeeder)
	if !ok {
		return errors.New("outcome source does not take client seeds")
	}

	s.mu.Lock()
	defer s.unlock()
	seeder.SetClientSeed(seed)
	return nil
}

func (s *Session) Deposit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.unlock()

	balance, err := ledger.Deposit(ctx, s.ledger, amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.balance = balance
	return balance, nil
}

// Withdraw takes funds out of the ledger. Stakes already queued are not
// reserved, so a withdrawal can leave them to be skipped at launch.
func (s *Session) Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.unlock()

	balance, err := ledger.Withdraw(ctx, s.ledger, amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.balance = balance
	return balance, nil
}

func (s *Session) validateStake(stake decimal.Decimal) error {
	if stake.LessThan(s.cfg.MinStake) || stake.GreaterThan(s.cfg.MaxStake) || !stake.Equal(stake.Truncate(2)) {
		return fmt.Errorf("%w: %s is outside [%s, %s] or has more than 2 decimals",
			ErrInvalidStakeAmount, stake, s.cfg.MinStake, s.cfg.MaxStake)
	}
	return nil
}

var minAutoCashout = decimal.RequireFromString("1.01")

// validateAutoCashout accepts zero (no target) or a two-decimal value of at
// least 1.01.
func validateAutoCashout(target decimal.Decimal) error {
	if target.IsZero() {
		return nil
	}
	if target.LessThan(minAutoCashout) || !target.Equal(target.Truncate(2)) {
		return fmt.Errorf("%w: got %s", ErrInvalidAutoCashout, target)
	}
	return nil
}

// catchUpLocked brings the round up to the wall clock before an action is
// applied. Only a halt is reported to the caller; anything else was already
// handled by the transition that hit it.
func (s *Session) catchUpLocked(ctx context.Context) error {
	if s.halted != nil {
		return s.halted
	}
	if err := s.advanceLocked(ctx, s.clock()); err != nil {
		if s.halted != nil {
			return s.halted
		}
		s.log.Warn("transition failed", zap.Error(err))
	}
	return nil
}

func (s *Session) queueLocked(ctx context.Context, owner Owner, stake, autoCashout decimal.Decimal) (*Wager, error) {
	w, err := s.book.queue(ctx, owner, stake, autoCashout, s.now)
	if err != nil {
		return nil, err
	}
	s.emitWager(EventWagerQueued, w)
	s.log.Debug("wager queued",
		zap.String("bet_id", w.ID),
		zap.String("owner", string(owner)),
		zap.String("stake", stake.String()))
	return w, nil
}

func (s *Session) advanceLocked(ctx context.Context, now time.Time) error {
	if now.Before(s.now) {
		now = s.now
	}
	s.now = now

	var errs []error
	for s.halted == nil {
		r := s.round
		switch r.Phase {
		case PhaseBetting:
			deadline := r.PhaseStartedAt.Add(s.cfg.BettingDuration)
			if now.Before(deadline) {
				return errors.Join(errs...)
			}
			if err := s.launchLocked(ctx, deadline); err != nil {
				errs = append(errs, err)
			}

		case PhaseAscending:
			if err := s.ascendLocked(ctx, now); err != nil {
				errs = append(errs, err)
			}
			if s.round.Phase == PhaseAscending {
				return errors.Join(errs...)
			}

		case PhaseSettled:
			deadline := r.SettledAt.Add(s.cfg.CooldownDuration)
			if now.Before(deadline) {
				return errors.Join(errs...)
			}
			s.openRoundLocked(ctx, deadline)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) openRoundLocked(ctx context.Context, at time.Time) {
	s.book.prune()
	s.rounds++
	s.round = &Round{
		ID:                uuid.New().String(),
		Number:            s.rounds,
		Phase:             PhaseBetting,
		PhaseStartedAt:    at,
		CurrentMultiplier: MinMultiplier,
	}

	if balance, err := s.ledger.Balance(ctx); err != nil {
		s.log.Warn("balance refresh failed", zap.Error(err))
	} else {
		s.balance = balance
	}

	e := Event{Type: EventRoundStarted, RoundID: s.round.ID}
	if c, ok := s.source.(Committer); ok {
		e.Commitment = c.NextCommitment()
	}
	s.emit(e)
	s.log.Info("round opened", zap.Int("round", s.rounds), zap.String("round_id", s.round.ID))
}

// launchLocked draws the terminal multiplier and commits the queue. A source
// failure reopens betting rather than launching a round without an outcome.
func (s *Session) launchLocked(ctx context.Context, at time.Time) error {
	r := s.round

	outcome, err := s.source.Next()
	if err != nil {
		r.PhaseStartedAt = at
		return fmt.Errorf("draw outcome for round %s: %w", r.ID, err)
	}
	if outcome.Crash.LessThan(MinMultiplier) {
		s.haltLocked(fmt.Errorf("%w: outcome %s below %s", ErrRoundIntegrityViolation, outcome.Crash, MinMultiplier))
		return nil
	}

	r.outcome = outcome
	r.Phase = PhaseAscending
	r.PhaseStartedAt = at
	r.StartedAt = at
	r.CurrentMultiplier = MinMultiplier
	s.emit(Event{Type: EventRoundLaunched, RoundID: r.ID, Commitment: outcome.Commitment})
	s.log.Info("round launched", zap.Int("round", r.Number), zap.Int("queued", len(s.book.queued())))

	var errs []error
	for _, w := range s.book.queued() {
		committed, balance, err := s.book.commit(ctx, w, r.ID, at)
		if err != nil {
			errs = append(errs, err)
		}
		if !committed {
			s.log.Info("wager skipped at launch",
				zap.String("bet_id", w.ID),
				zap.String("reason", w.CancelReason))
			s.emitWager(EventWagerSkipped, w)
			s.autoplaySkippedLocked(w)
			continue
		}

		s.balance = balance
		s.journal(ctx, ledger.KindBet, w.Stake.Neg(), balance)
		s.emitWager(EventWagerCommitted, w)
	}
	return errors.Join(errs...)
}

// ascendLocked moves the multiplier to its value at now, fires the
// auto-cashouts it passed and settles once it reaches the terminal value.
// An auto-cashout whose credit fails is attempted once; the wager then stays
// active and is lost at settlement.
func (s *Session) ascendLocked(ctx context.Context, now time.Time) error {
	r := s.round
	terminal := r.terminal()

	m := MultiplierAt(s.cfg.GrowthRate, now.Sub(r.StartedAt))
	if m.LessThan(r.CurrentMultiplier) {
		s.haltLocked(fmt.Errorf("%w: multiplier went from %s to %s",
			ErrRoundIntegrityViolation, r.CurrentMultiplier, m))
		return nil
	}
	reached := decimal.Min(m, terminal)

	var errs []error
	for _, w := range s.book.activeIn(r.ID) {
		target := w.AutoCashout
		if w.disarmed || !target.IsPositive() || target.GreaterThan(reached) || !target.LessThan(terminal) {
			continue
		}
		if err := s.cashOutLocked(ctx, w, target); err != nil {
			w.disarmed = true
			s.log.Warn("auto cashout failed, wager rides to settlement",
				zap.String("bet_id", w.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if m.LessThan(terminal) {
		r.CurrentMultiplier = m
		return errors.Join(errs...)
	}

	settledAt := r.StartedAt.Add(TimeToReach(s.cfg.GrowthRate, terminal))
	if settledAt.After(now) {
		settledAt = now
	}
	if err := s.settleLocked(ctx, settledAt); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) settleLocked(ctx context.Context, at time.Time) error {
	r := s.round
	r.CurrentMultiplier = r.terminal()
	r.Phase = PhaseSettled
	r.PhaseStartedAt = at
	r.SettledAt = at

	played := s.book.settle(r.ID, at)
	result := RoundResult{
		RoundID:    r.ID,
		Number:     r.Number,
		CrashPoint: r.outcome.Crash,
		ServerSeed: r.outcome.ServerSeed,
		ClientSeed: r.outcome.ClientSeed,
		Nonce:      r.outcome.Nonce,
		Commitment: r.outcome.Commitment,
		StartedAt:  r.StartedAt,
		SettledAt:  at,
	}
	for _, w := range played {
		if w.State == WagerActive {
			s.haltLocked(fmt.Errorf("%w: wager %s still active after settlement", ErrRoundIntegrityViolation, w.ID))
			return nil
		}
		result.Wagers = append(result.Wagers, viewOf(w))
	}

	s.results = append([]RoundResult{result}, s.results...)
	if len(s.results) > s.cfg.HistorySize {
		s.results = s.results[:s.cfg.HistorySize]
	}

	s.emit(Event{Type: EventRoundSettled, RoundID: r.ID, Result: &result})
	s.log.Info("round settled",
		zap.Int("round", r.Number),
		zap.String("crash_point", r.outcome.Crash.String()),
		zap.Int("wagers", len(played)))

	return s.autoplaySettledLocked(ctx, played)
}

func (s *Session) cashOutLocked(ctx context.Context, w *Wager, exit decimal.Decimal) error {
	balance, err := s.book.cashOut(ctx, w, exit, s.now)
	if err != nil {
		return err
	}
	s.balance = balance
	s.journal(ctx, ledger.KindPayout, w.Payout, balance)
	s.emitWager(EventCashedOut, w)
	s.log.Debug("wager cashed out",
		zap.String("bet_id", w.ID),
		zap.String("exit", exit.String()),
		zap.String("payout", w.Payout.String()))
	return nil
}

// journal records a balance mutation that has already happened. A failure
// here must not undo the mutation, so it is only logged.
func (s *Session) journal(ctx context.Context, kind ledger.Kind, amount, balance decimal.Decimal) {
	if err := s.ledger.RecordTransaction(ctx, kind, amount, balance); err != nil {
		s.log.Warn("record transaction failed",
			zap.String("kind", string(kind)),
			zap.String("amount", amount.String()),
			zap.Error(err))
	}
}

func (s *Session) haltLocked(cause error) error {
	s.halted = fmt.Errorf("%w: %w", ErrEngineHalted, cause)
	s.log.Error("session halted", zap.Error(cause))
	s.emit(Event{Type: EventHalted, RoundID: s.round.ID, Error: cause.Error()})
	return s.halted
}

func (s *Session) emit(e Event) {
	e.PlayerID = s.playerID
	e.At = s.now
	s.pending = append(s.pending, e)
}

func (s *Session) emitWager(t EventType, w *Wager) {
	v := viewOf(w)
	s.emit(Event{Type: t, RoundID: s.round.ID, Wager: &v})
}

// unlock publishes a fresh snapshot, releases mu and then delivers the
// events collected while it was held.
func (s *Session) unlock() {
	s.publishLocked()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range events {
		for _, l := range s.listeners {
			l.HandleEvent(e)
		}
	}
}

func (s *Session) publishLocked() {
	r := s.round
	snap := &Snapshot{
		PlayerID:          s.playerID,
		RoundID:           r.ID,
		Round:             r.Number,
		Phase:             r.Phase,
		CurrentMultiplier: r.CurrentMultiplier,
		TimeLeft:          r.timeLeft(s.cfg, s.now).Seconds(),
		Balance:           s.balance,
		Wagers:            make([]WagerView, 0, len(s.book.current)),
		Autoplay:          s.autoplayStatusLocked(),
		History:           make([]decimal.Decimal, 0, len(s.results)),
		Halted:            s.halted != nil,
		UpdatedAt:         s.now,
	}

	switch r.Phase {
	case PhaseBetting:
		if c, ok := s.source.(Committer); ok {
			snap.Commitment = c.NextCommitment()
		}
	case PhaseAscending:
		snap.Commitment = r.outcome.Commitment
	case PhaseSettled:
		crash := r.outcome.Crash
		snap.CrashPoint = &crash
		snap.Commitment = r.outcome.Commitment
		snap.ServerSeed = r.outcome.ServerSeed
		snap.ClientSeed = r.outcome.ClientSeed
		snap.Nonce = r.outcome.Nonce
	}

	for _, w := range s.book.current {
		snap.Wagers = append(snap.Wagers, viewOf(w))
	}
	for _, res := range s.results {
		snap.History = append(snap.History, res.CrashPoint)
	}
	s.snapshot.Store(snap)
}
