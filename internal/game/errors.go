package game

import (
	"errors"

	"flightdeck/internal/ledger"
)

var (
	ErrInvalidStakeAmount = errors.New("invalid stake amount")
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
	ErrNotCancellable     = errors.New("wager is not cancellable")
	ErrNotActive          = errors.New("wager is not active")
	ErrWagerNotFound      = errors.New("wager not found")

	ErrInvalidAutoCashout = errors.New("auto cashout must be at least 1.01")
	ErrInvalidAutoplay    = errors.New("invalid autoplay settings")
	ErrAutoplayActive     = errors.New("autoplay already running")
	ErrAutoplayInactive   = errors.New("autoplay is not running")

	// ErrRoundIntegrityViolation means an invariant of the round broke. The
	// session halts and refuses further actions.
	ErrRoundIntegrityViolation = errors.New("round integrity violation")
	ErrEngineHalted            = errors.New("engine halted")
)
