package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the tunables of a crash round. The env tags are read by
// internal/config with a GAME_ prefix.
type Config struct {
	BettingDuration  time.Duration `env:"BETTING_DURATION" envDefault:"5s"`
	CooldownDuration time.Duration `env:"COOLDOWN_DURATION" envDefault:"3s"`
	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"16ms"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"100ms"`

	// GrowthRate is k in multiplier(t) = e^(k*t), t in seconds.
	GrowthRate              float64         `env:"GROWTH_RATE" envDefault:"0.09"`
	InstantCrashProbability float64         `env:"INSTANT_CRASH_PROBABILITY" envDefault:"0.05"`
	HouseEdge               float64         `env:"HOUSE_EDGE" envDefault:"0.01"`
	MaxMultiplier           decimal.Decimal `env:"MAX_MULTIPLIER" envDefault:"1000000"`

	MinStake        decimal.Decimal `env:"MIN_STAKE" envDefault:"1"`
	MaxStake        decimal.Decimal `env:"MAX_STAKE" envDefault:"1000"`
	StartingBalance decimal.Decimal `env:"STARTING_BALANCE" envDefault:"0"`

	HistorySize int `env:"HISTORY_SIZE" envDefault:"10"`
}

// DefaultConfig mirrors the envDefault tags for callers that do not load
// the environment (tests, demos).
func DefaultConfig() Config {
	return Config{
		BettingDuration:         5 * time.Second,
		CooldownDuration:        3 * time.Second,
		TickInterval:            16 * time.Millisecond,
		SnapshotInterval:        100 * time.Millisecond,
		GrowthRate:              0.09,
		InstantCrashProbability: 0.05,
		HouseEdge:               0.01,
		MaxMultiplier:           decimal.NewFromInt(1000000),
		MinStake:                decimal.NewFromInt(1),
		MaxStake:                decimal.NewFromInt(1000),
		StartingBalance:         decimal.Zero,
		HistorySize:             10,
	}
}

func (c Config) Validate() error {
	if c.BettingDuration <= 0 || c.CooldownDuration <= 0 {
		return errors.New("phase durations must be positive")
	}
	if c.TickInterval <= 0 || c.SnapshotInterval <= 0 {
		return errors.New("tick and snapshot intervals must be positive")
	}
	if c.GrowthRate <= 0 {
		return fmt.Errorf("growth rate must be positive, got %v", c.GrowthRate)
	}
	if c.InstantCrashProbability < 0 || c.InstantCrashProbability > 1 {
		return fmt.Errorf("instant crash probability must be in [0,1], got %v", c.InstantCrashProbability)
	}
	if c.HouseEdge <= 0 || c.HouseEdge >= 1 {
		return fmt.Errorf("house edge must be in (0,1), got %v", c.HouseEdge)
	}
	if c.MaxMultiplier.LessThan(MinMultiplier) {
		return errors.New("max multiplier must be at least 1.00")
	}
	if !c.MinStake.IsPositive() || c.MinStake.GreaterThan(c.MaxStake) {
		return fmt.Errorf("invalid stake bounds [%s, %s]", c.MinStake, c.MaxStake)
	}
	if c.StartingBalance.IsNegative() {
		return errors.New("starting balance cannot be negative")
	}
	if c.HistorySize < 0 {
		return errors.New("history size cannot be negative")
	}
	return nil
}
