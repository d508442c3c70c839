package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"flightdeck/internal/ledger"
	"flightdeck/internal/logger"
)

// LedgerFactory opens the ledger backing one player's session.
type LedgerFactory func(ctx context.Context, playerID string) (ledger.Ledger, error)

var ErrManagerStopped = errors.New("game manager stopped")

// Manager owns one Session per player and the goroutines that drive them.
type Manager struct {
	cfg     Config
	ledgers LedgerFactory
	opts    []Option
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessions   map[string]*Session
	stateMutex sync.RWMutex
}

// NewManager prepares a manager. opts are applied to every session it
// creates.
func NewManager(cfg Config, ledgers LedgerFactory, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		ledgers:  ledgers,
		opts:     opts,
		log:      logger.Named("manager"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}, nil
}

func (m *Manager) Config() Config {
	return m.cfg
}

// Session returns the player's session, creating and starting it on first
// use.
func (m *Manager) Session(ctx context.Context, playerID string) (*Session, error) {
	if playerID == "" {
		return nil, errors.New("player id is required")
	}
	if s, ok := m.Lookup(playerID); ok {
		return s, nil
	}

	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if m.ctx.Err() != nil {
		return nil, ErrManagerStopped
	}
	if s, ok := m.sessions[playerID]; ok {
		return s, nil
	}

	l, err := m.ledgers(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("open ledger for %s: %w", playerID, err)
	}
	s, err := NewSession(ctx, playerID, m.cfg, l, m.opts...)
	if err != nil {
		return nil, err
	}
	m.sessions[playerID] = s

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := s.Run(m.ctx); err != nil {
			m.log.Error("session stopped", zap.String("player_id", playerID), zap.Error(err))
		}
	}()

	m.log.Info("session started", zap.String("player_id", playerID), zap.Int("sessions", len(m.sessions)))
	return s, nil
}

func (m *Manager) Lookup(playerID string) (*Session, bool) {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	s, ok := m.sessions[playerID]
	return s, ok
}

func (m *Manager) Count() int {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return len(m.sessions)
}

// Stop cancels every session loop and waits for them to return.
func (m *Manager) Stop() {
	m.stateMutex.Lock()
	m.cancel()
	m.stateMutex.Unlock()

	m.wg.Wait()
	m.log.Info("game manager stopped")
}
