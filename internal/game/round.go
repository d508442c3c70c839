package game

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseBetting   Phase = "BETTING"
	PhaseAscending Phase = "ASCENDING"
	PhaseSettled   Phase = "SETTLED"
)

// Round is one cycle of the game. The outcome stays private until the round
// has settled.
type Round struct {
	ID                string
	Number            int
	Phase             Phase
	PhaseStartedAt    time.Time
	StartedAt         time.Time
	SettledAt         time.Time
	CurrentMultiplier decimal.Decimal

	outcome Outcome
}

func (r *Round) terminal() decimal.Decimal {
	return r.outcome.Crash
}

// largest value fed to decimal before truncation; far above any MaxMultiplier
const growthCeiling = 1e15

// MultiplierAt is the growth law e^(rate*t) truncated to two decimals. It
// depends only on elapsed time, so recomputing it from StartedAt never
// accumulates error and is non-decreasing in t.
func MultiplierAt(rate float64, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return MinMultiplier
	}
	v := math.Exp(rate * elapsed.Seconds())
	if v > growthCeiling {
		v = growthCeiling
	}
	m := decimal.New(int64(math.Floor(v*100)), -2)
	if m.LessThan(MinMultiplier) {
		return MinMultiplier
	}
	return m
}

// TimeToReach is the elapsed time at which the curve reaches m.
func TimeToReach(rate float64, m decimal.Decimal) time.Duration {
	f := m.InexactFloat64()
	if f <= 1 {
		return 0
	}
	return time.Duration(math.Log(f) / rate * float64(time.Second))
}

// timeLeft is what the presentation layer counts down. Ascending has no
// known end, so it reports zero.
func (r *Round) timeLeft(cfg Config, now time.Time) time.Duration {
	var end time.Time
	switch r.Phase {
	case PhaseBetting:
		end = r.PhaseStartedAt.Add(cfg.BettingDuration)
	case PhaseSettled:
		end = r.SettledAt.Add(cfg.CooldownDuration)
	default:
		return 0
	}
	if left := end.Sub(now); left > 0 {
		return left
	}
	return 0
}
