package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flightdeck/internal/game"
	"flightdeck/internal/logger"
)

type roundRecord struct {
	playerID string
	result   game.RoundResult
}

// RoundStore keeps an audit trail of settled rounds with their revealed
// seeds, so any past crash point can be re-verified.
type RoundStore struct {
	db  *sql.DB
	w   *writer[roundRecord]
	log *zap.Logger
}

func NewRoundStore(db *sql.DB, buffer int) *RoundStore {
	s := &RoundStore{db: db, log: logger.Named("db").With(zapTable("rounds"))}
	s.w = newWriter(buffer, s.log, s.insert)
	return s
}

// HandleEvent queues every settled round.
func (s *RoundStore) HandleEvent(e game.Event) {
	if e.Type != game.EventRoundSettled || e.Result == nil {
		return
	}
	if err := s.w.enqueue(roundRecord{playerID: e.PlayerID, result: *e.Result}); err != nil {
		s.log.Warn("dropping round", zap.String("round_id", e.Result.RoundID), zap.Error(err))
	}
}

func (s *RoundStore) insert(ctx context.Context, rec roundRecord) error {
	r := rec.result
	staked, paid := decimal.Zero, decimal.Zero
	for _, w := range r.Wagers {
		staked = staked.Add(w.Stake)
		if w.Payout != nil {
			paid = paid.Add(*w.Payout)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, player_id, number, crash_point, server_seed, client_seed, nonce,
		                     commitment, wagers, staked, paid_out, started_at, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		r.RoundID, rec.playerID, r.Number, r.CrashPoint, r.ServerSeed, r.ClientSeed, r.Nonce,
		r.Commitment, len(r.Wagers), staked, paid, r.StartedAt, r.SettledAt)
	if err != nil {
		return fmt.Errorf("insert round %s: %w", r.RoundID, err)
	}
	return nil
}

// Recent returns a player's settled rounds, newest first. Wagers are not
// stored per round, so the results carry none.
func (s *RoundStore) Recent(ctx context.Context, playerID string, limit int) ([]game.RoundResult, error) {
	if limit <= 0 {
		limit = defaultStatementLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, crash_point, server_seed, client_seed, nonce, commitment, started_at, settled_at
		 FROM rounds
		 WHERE player_id = $1
		 ORDER BY settled_at DESC
		 LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []game.RoundResult
	for rows.Next() {
		var r game.RoundResult
		if err := rows.Scan(&r.RoundID, &r.Number, &r.CrashPoint, &r.ServerSeed, &r.ClientSeed,
			&r.Nonce, &r.Commitment, &r.StartedAt, &r.SettledAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RoundStore) Close() {
	s.w.Close()
}

func zapTable(name string) zap.Field {
	return zap.String("table", name)
}
