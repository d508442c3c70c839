package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flightdeck/internal/config"
	"flightdeck/internal/logger"
)

type Service interface {
	GetClient() *redis.Client
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
	log    *zap.Logger
}

// New connects to Redis and pings it once. Callers decide whether to run
// without Redis when it fails.
func New(cfg config.RedisConfig) (Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := logger.Named("cache")
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))

	return &service{client: client, log: log}, nil
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

// Health pings Redis and reports latency and connection pool usage. A pool
// that keeps timing out is reported as degraded.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.Warn("redis health check failed", zap.Error(err))
		return map[string]string{
			"status": "down",
			"error":  fmt.Sprintf("redis down: %v", err),
		}
	}

	pool := s.client.PoolStats()
	stats := map[string]string{
		"status":      "up",
		"message":     "It's healthy",
		"latency":     time.Since(start).String(),
		"total_conns": strconv.FormatUint(uint64(pool.TotalConns), 10),
		"idle_conns":  strconv.FormatUint(uint64(pool.IdleConns), 10),
		"timeouts":    strconv.FormatUint(uint64(pool.Timeouts), 10),
	}
	if pool.Timeouts > 0 && pool.Timeouts*10 > pool.Hits+pool.Misses {
		stats["status"] = "degraded"
		stats["message"] = "Connection pool is timing out on more than 10% of requests."
	}
	return stats
}

func (s *service) Close() error {
	s.log.Info("disconnecting from redis")
	return s.client.Close()
}
