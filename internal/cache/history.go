package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flightdeck/internal/game"
	"flightdeck/internal/logger"
)

const REDIS_KEY_HISTORY_PREFIX = "flightdeck:history:"

// History keeps each player's most recent crash points in a capped Redis
// list, newest first. It survives restarts, unlike the session's own strip.
// Settled rounds arrive through HandleEvent and are written from a queue, so
// a slow Redis never holds up a session.
type History struct {
	client *redis.Client
	size   int64
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan historyEntry
	done   chan struct{}
}

type historyEntry struct {
	playerID string
	crash    decimal.Decimal
}

const historyQueueSize = 256

func NewHistory(client *redis.Client, size int) *History {
	h := &History{
		client: client,
		size:   int64(size),
		log:    logger.Named("cache"),
		queue:  make(chan historyEntry, historyQueueSize),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *History) Push(ctx context.Context, playerID string, crash decimal.Decimal) error {
	key := REDIS_KEY_HISTORY_PREFIX + playerID
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, crash.StringFixed(2))
		pipe.LTrim(ctx, key, 0, h.size-1)
		return nil
	})
	return err
}

func (h *History) Recent(ctx context.Context, playerID string) ([]decimal.Decimal, error) {
	raw, err := h.client.LRange(ctx, REDIS_KEY_HISTORY_PREFIX+playerID, 0, h.size-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, 0, len(raw))
	for _, s := range raw {
		v, err := decimal.NewFromString(s)
		if err != nil {
			h.log.Warn("skipping malformed history entry", zap.String("value", s))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// HandleEvent queues settled rounds for writing.
func (h *History) HandleEvent(e game.Event) {
	if e.Type != game.EventRoundSettled || e.Result == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- historyEntry{playerID: e.PlayerID, crash: e.Result.CrashPoint}:
	default:
		h.log.Warn("crash history queue full, dropping entry", zap.String("player_id", e.PlayerID))
	}
}

func (h *History) run() {
	defer close(h.done)
	for entry := range h.queue {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := h.Push(ctx, entry.playerID, entry.crash); err != nil {
			h.log.Warn("push crash history", zap.String("player_id", entry.playerID), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting rounds and waits for the queued ones to be written.
func (h *History) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()
	<-h.done
}
