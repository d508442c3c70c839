package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"

	"flightdeck/internal/game"
)

type Config struct {
	Port           int    `env:"PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`
	// RateLimit is requests per minute per client IP; 0 disables the limiter.
	RateLimit int `env:"RATE_LIMIT" envDefault:"600"`

	Game     game.Config    `envPrefix:"GAME_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Database DatabaseConfig `envPrefix:"BLUEPRINT_DB_"`
}

type RedisConfig struct {
	Addr     string `env:"URL" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	Database string `env:"DATABASE" envDefault:"crashdb"`
	Username string `env:"USERNAME" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Schema   string `env:"SCHEMA" envDefault:"public"`
}

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// Load parses the environment (and any .env file) into a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative, got %d", cfg.RateLimit)
	}
	if err := cfg.Game.Validate(); err != nil {
		return nil, fmt.Errorf("game config: %w", err)
	}
	return cfg, nil
}
