package game

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero betting window", func(c *Config) { c.BettingDuration = 0 }, true},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, true},
		{"flat growth", func(c *Config) { c.GrowthRate = 0 }, true},
		{"instant crash above one", func(c *Config) { c.InstantCrashProbability = 1.1 }, true},
		{"no house edge", func(c *Config) { c.HouseEdge = 0 }, true},
		{"negative house edge", func(c *Config) { c.HouseEdge = -0.01 }, true},
		{"whole house edge", func(c *Config) { c.HouseEdge = 1 }, true},
		{"small house edge", func(c *Config) { c.HouseEdge = 0.0001 }, false},
		{"max below one", func(c *Config) { c.MaxMultiplier = decimal.RequireFromString("0.99") }, true},
		{"inverted stakes", func(c *Config) { c.MinStake = decimal.NewFromInt(2000) }, true},
		{"negative history", func(c *Config) { c.HistorySize = -1 }, true},
		{"slow snapshots", func(c *Config) { c.SnapshotInterval = time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
