package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flightdeck/internal/game"
	"flightdeck/internal/ledger"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidStakeAmount),
		errors.Is(err, game.ErrInvalidAutoCashout),
		errors.Is(err, game.ErrInvalidAutoplay),
		errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrWagerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrNotCancellable),
		errors.Is(err, game.ErrNotActive),
		errors.Is(err, game.ErrAutoplayActive),
		errors.Is(err, game.ErrAutoplayInactive):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrManagerStopped):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (s *FiberServer) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"game": fiber.Map{
			"status":            "running",
			"sessions":          s.gameManager.Count(),
			"connected_clients": s.gameHub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	} else {
		health["database"] = fiber.Map{"status": "disabled"}
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	} else {
		health["cache"] = fiber.Map{"status": "disabled"}
	}
	return c.JSON(health)
}

// Game handlers

func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return badRequest(c, "User ID is required")
	}
	sess, err := s.session(c.UserContext(), userID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sess.Snapshot())
}

// getHistoryHandler prefers the live session's rounds and falls back to the
// archive for players without one, e.g. after a restart.
func (s *FiberServer) getHistoryHandler(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return badRequest(c, "User ID is required")
	}
	limit := c.QueryInt("limit", s.gameManager.Config().HistorySize)

	var rounds []game.RoundResult
	if sess, ok := s.gameManager.Lookup(userID); ok {
		rounds = sess.History()
	}
	if len(rounds) == 0 && s.rounds != nil {
		archived, err := s.rounds.Recent(c.UserContext(), userID, limit)
		if err != nil {
			return s.fail(c, err)
		}
		rounds = archived
	}
	if limit > 0 && len(rounds) > limit {
		rounds = rounds[:limit]
	}
	if rounds == nil {
		rounds = []game.RoundResult{}
	}

	resp := fiber.Map{
		"user_id": userID,
		"rounds":  rounds,
	}
	if s.history != nil {
		points, err := s.history.Recent(c.UserContext(), userID)
		if err != nil {
			s.log.Warn("crash history unavailable", zap.String("user_id", userID), zap.Error(err))
		} else {
			resp["crash_points"] = points
		}
	}
	return c.JSON(resp)
}

func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var req game.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.ServerSeed == "" {
		return badRequest(c, "Server seed is required")
	}

	dist := s.gameManager.Config().Distribution()
	computed := game.HashAndMapToMultiplier(req.ServerSeed, req.ClientSeed, req.Nonce, dist)
	return c.JSON(fiber.Map{
		"valid":       game.VerifyRound(req.ServerSeed, req.ClientSeed, req.Nonce, req.Commitment, dist, req.CrashPoint),
		"crash_point": computed.StringFixed(2),
		"commitment":  game.HashCommitment(req.ServerSeed),
	})
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "User ID is required")
	}

	sess, err := s.session(c.UserContext(), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	view, err := sess.QueueWager(c.UserContext(), req.Amount, req.AutoCashout)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Bet queued for the next round",
		"bet":     view,
	})
}

func (s *FiberServer) cancelBetHandler(c *fiber.Ctx) error {
	var req game.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" || req.BetID == "" {
		return badRequest(c, "User ID and Bet ID are required")
	}

	sess, err := s.session(c.UserContext(), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	view, err := sess.CancelWager(c.UserContext(), req.BetID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "bet": view})
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req game.CashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" || req.BetID == "" {
		return badRequest(c, "User ID and Bet ID are required")
	}

	sess, err := s.session(c.UserContext(), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	view, err := sess.CashOut(c.UserContext(), req.BetID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "bet": view})
}

func (s *FiberServer) startAutoplayHandler(c *fiber.Ctx) error {
	var req game.AutoplayRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "User ID is required")
	}

	sess, err := s.session(c.UserContext(), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	status, err := sess.StartAutoplay(c.UserContext(), req.Config())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "autoplay": status})
}

func (s *FiberServer) stopAutoplayHandler(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "User ID is required")
	}

	sess, err := s.session(c.UserContext(), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	status, err := sess.StopAutoplay(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "autoplay": status})
}

func (s *FiberServer) setClientSeedHandler(c *fiber.Ctx) error {
	var req struct {
		UserID     string `json:"user_id"`
		ClientSeed string `json:"client_seed"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" || req.ClientSeed == "" {
		return badRequest(c, "User ID and client seed are required")
	}

	sess, err := s.session(c.UserContext(), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	if err := sess.SetClientSeed(req.ClientSeed); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "client_seed": req.ClientSeed})
}

// User balance handlers

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	sess, err := s.session(c.UserContext(), userID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": sess.Snapshot().Balance,
	})
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	return s.moveFunds(c, (*game.Session).Deposit)
}

func (s *FiberServer) withdrawHandler(c *fiber.Ctx) error {
	return s.moveFunds(c, (*game.Session).Withdraw)
}

func (s *FiberServer) moveFunds(c *fiber.Ctx, move func(*game.Session, context.Context, decimal.Decimal) (decimal.Decimal, error)) error {
	userID := c.Params("userId")
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sess, err := s.session(c.UserContext(), userID)
	if err != nil {
		return s.fail(c, err)
	}
	balance, err := move(sess, c.UserContext(), req.Amount)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"user_id": userID,
		"balance": balance,
	})
}

func (s *FiberServer) getTransactionsHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	txs, err := s.statement.Transactions(c.UserContext(), userID, c.QueryInt("limit", 50))
	if err != nil {
		return s.fail(c, err)
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	return c.JSON(fiber.Map{
		"user_id":      userID,
		"transactions": txs,
	})
}
