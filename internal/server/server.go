package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"flightdeck/internal/cache"
	"flightdeck/internal/config"
	"flightdeck/internal/database"
	"flightdeck/internal/game"
	"flightdeck/internal/ledger"
	"flightdeck/internal/logger"
	"flightdeck/internal/monitoring"
)

// Options are the collaborators a FiberServer serves. DB, Cache, History
// and Rounds may be nil when the backing store is not configured.
type Options struct {
	DB        database.Service
	Cache     cache.Service
	Manager   *game.Manager
	Hub       *game.Hub
	Statement ledger.Statement
	History   *cache.History
	Rounds    *database.RoundStore
	RateLimit int
}

type FiberServer struct {
	*fiber.App

	db          database.Service
	cache       cache.Service
	gameManager *game.Manager
	gameHub     *game.Hub
	statement   ledger.Statement
	history     *cache.History
	rounds      *database.RoundStore
	closers     []func()
	log         *zap.Logger
}

func NewFiberServer(o Options) *FiberServer {
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "flightdeck",
			AppName:       "flightdeck",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:          o.DB,
		cache:       o.Cache,
		gameManager: o.Manager,
		gameHub:     o.Hub,
		statement:   o.Statement,
		history:     o.History,
		rounds:      o.Rounds,
		log:         logger.Named("server"),
	}

	server.App.Use(recover.New())
	if o.RateLimit > 0 {
		server.App.Use(limiter.New(limiter.Config{
			Max:        o.RateLimit,
			Expiration: 1 * time.Minute,
		}))
	}
	server.App.Use(monitoring.Middleware())

	server.RegisterFiberRoutes()
	return server
}

// New wires the production stack from cfg. Postgres and Redis are optional:
// without Redis balances live in memory, without Postgres the journal falls
// back to Redis (or memory) and rounds are not archived.
func New(cfg *config.Config) (*FiberServer, error) {
	log := logger.Named("server")
	monitoring.Init()

	var (
		closers []func()
		db      database.Service
		dbLog   *database.Journal
		rounds  *database.RoundStore
	)

	if d, err := database.New(cfg.Database.DSN()); err != nil {
		log.Warn("database unavailable, running without persistence", zap.Error(err))
	} else if err := database.RunMigrations(d.DB(), cfg.MigrationsPath); err != nil {
		d.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	} else {
		db = d
		dbLog = database.NewJournal(d.DB(), 1024)
		rounds = database.NewRoundStore(d.DB(), 256)
		closers = append(closers, dbLog.Close, rounds.Close)
	}

	redisService, err := cache.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, balances are kept in memory", zap.Error(err))
	}

	type journal interface {
		ledger.Journal
		ledger.Statement
	}
	var j journal
	switch {
	case dbLog != nil:
		j = dbLog
	case redisService != nil:
		j = ledger.NewRedisJournal(redisService.GetClient())
	default:
		j = ledger.NewMemoryJournal()
	}

	opening := cfg.Game.StartingBalance
	var ledgers game.LedgerFactory
	if redisService != nil {
		client := redisService.GetClient()
		ledgers = func(ctx context.Context, playerID string) (ledger.Ledger, error) {
			return ledger.NewRedis(ctx, client, playerID, opening, j)
		}
	} else {
		ledgers = func(ctx context.Context, playerID string) (ledger.Ledger, error) {
			return ledger.NewMemory(playerID, opening, j), nil
		}
	}

	hub := game.NewHub()
	opts := []game.Option{
		game.WithListener(hub),
		game.WithListener(monitoring.Recorder{}),
		game.WithSnapshotHandler(hub.PublishSnapshot),
	}

	var history *cache.History
	if redisService != nil {
		history = cache.NewHistory(redisService.GetClient(), cfg.Game.HistorySize)
		opts = append(opts, game.WithListener(history))
		closers = append(closers, history.Close)
	}
	if rounds != nil {
		opts = append(opts, game.WithListener(rounds))
	}

	manager, err := game.NewManager(cfg.Game, ledgers, opts...)
	if err != nil {
		for _, c := range closers {
			c()
		}
		if redisService != nil {
			redisService.Close()
		}
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	go hub.Run()

	server := NewFiberServer(Options{
		DB:        db,
		Cache:     redisService,
		Manager:   manager,
		Hub:       hub,
		Statement: j,
		History:   history,
		Rounds:    rounds,
		RateLimit: cfg.RateLimit,
	})
	server.closers = closers
	log.Info("game server ready",
		zap.Bool("database", db != nil),
		zap.Bool("redis", redisService != nil),
		zap.Duration("betting", cfg.Game.BettingDuration),
		zap.String("min_stake", cfg.Game.MinStake.String()),
		zap.String("starting_balance", opening.StringFixed(2)),
	)
	return server, nil
}

// session fetches the caller's session and keeps the active gauge current.
func (s *FiberServer) session(ctx context.Context, userID string) (*game.Session, error) {
	sess, err := s.gameManager.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	monitoring.ActiveSessions.Set(float64(s.gameManager.Count()))
	return sess, nil
}

// Shutdown gracefully shuts down the server and game components
func (s *FiberServer) Shutdown() error {
	s.log.Info("shutting down")

	if err := s.App.ShutdownWithTimeout(5 * time.Second); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}

	if s.gameManager != nil {
		s.gameManager.Stop()
	}
	if s.gameHub != nil {
		s.gameHub.Close()
	}

	// flush pending journal and round writes before the pool closes
	for _, c := range s.closers {
		c()
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
