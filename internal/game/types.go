package game

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetRequest struct {
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	AutoCashout decimal.Decimal `json:"auto_cashout,omitempty"`
}

type CancelRequest struct {
	UserID string `json:"user_id"`
	BetID  string `json:"bet_id"`
}

type CashoutRequest struct {
	UserID string `json:"user_id"`
	BetID  string `json:"bet_id"`
}

type AutoplayRequest struct {
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Rounds      int             `json:"rounds"`
	StopProfit  decimal.Decimal `json:"stop_profit"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	AutoCashout decimal.Decimal `json:"auto_cashout,omitempty"`
}

func (r AutoplayRequest) Config() AutoplayConfig {
	return AutoplayConfig{
		Stake:       r.Amount,
		Rounds:      r.Rounds,
		ProfitStop:  r.StopProfit,
		LossStop:    r.StopLoss,
		AutoCashout: r.AutoCashout,
	}
}

type VerifyRequest struct {
	ServerSeed string          `json:"server_seed"`
	ClientSeed string          `json:"client_seed"`
	Nonce      int             `json:"nonce"`
	Commitment string          `json:"commitment"`
	CrashPoint decimal.Decimal `json:"crash_point"`
}

// WagerView is the read-only shape of a wager handed to the presentation layer.
type WagerView struct {
	BetID          string           `json:"bet_id"`
	Owner          Owner            `json:"owner"`
	Stake          decimal.Decimal  `json:"stake"`
	AutoCashout    *decimal.Decimal `json:"auto_cashout,omitempty"`
	State          WagerState       `json:"state"`
	RoundID        string           `json:"round_id,omitempty"`
	ExitMultiplier *decimal.Decimal `json:"exit_multiplier,omitempty"`
	Payout         *decimal.Decimal `json:"payout,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
}

func viewOf(w *Wager) WagerView {
	v := WagerView{
		BetID:        w.ID,
		Owner:        w.Owner,
		Stake:        w.Stake,
		State:        w.State,
		RoundID:      w.RoundID,
		CancelReason: w.CancelReason,
	}
	if w.AutoCashout.IsPositive() {
		target := w.AutoCashout
		v.AutoCashout = &target
	}
	if w.State == WagerCashedOut {
		exit, payout := w.ExitMultiplier, w.Payout
		v.ExitMultiplier = &exit
		v.Payout = &payout
	}
	return v
}

// RoundResult is a settled round with its seeds revealed.
type RoundResult struct {
	RoundID    string          `json:"round_id"`
	Number     int             `json:"number"`
	CrashPoint decimal.Decimal `json:"crash_point"`
	ServerSeed string          `json:"server_seed,omitempty"`
	ClientSeed string          `json:"client_seed,omitempty"`
	Nonce      int             `json:"nonce"`
	Commitment string          `json:"commitment,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	SettledAt  time.Time       `json:"settled_at"`
	Wagers     []WagerView     `json:"wagers,omitempty"`
}

type AutoplayStatus struct {
	Active       bool            `json:"active"`
	Config       AutoplayConfig  `json:"config"`
	RoundsPlayed int             `json:"rounds_played"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	StopReason   string          `json:"stop_reason,omitempty"`
}

// Snapshot is an immutable picture of a session, rebuilt after every
// mutation. Readers never see a half-applied transition.
type Snapshot struct {
	PlayerID          string            `json:"player_id"`
	RoundID           string            `json:"round_id"`
	Round             int               `json:"round"`
	Phase             Phase             `json:"phase"`
	CurrentMultiplier decimal.Decimal   `json:"current_multiplier"`
	TimeLeft          float64           `json:"time_left"`
	Commitment        string            `json:"commitment,omitempty"`
	CrashPoint        *decimal.Decimal  `json:"crash_point,omitempty"`
	ServerSeed        string            `json:"server_seed,omitempty"`
	ClientSeed        string            `json:"client_seed,omitempty"`
	Nonce             int               `json:"nonce,omitempty"`
	Balance           decimal.Decimal   `json:"balance"`
	Wagers            []WagerView       `json:"wagers"`
	Autoplay          *AutoplayStatus   `json:"autoplay,omitempty"`
	History           []decimal.Decimal `json:"history"`
	Halted            bool              `json:"halted,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
