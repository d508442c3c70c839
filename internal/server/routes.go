package server

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flightdeck/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.App.Group("/api/v1")

	api.Get("/game/state", s.getGameStateHandler)
	api.Get("/game/history", s.getHistoryHandler)
	api.Post("/game/verify", s.verifyHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/bet/cancel", s.cancelBetHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Post("/game/autoplay/start", s.startAutoplayHandler)
	api.Post("/game/autoplay/stop", s.stopAutoplayHandler)
	api.Post("/game/seed", s.setClientSeedHandler)

	api.Get("/user/:userId/balance", s.getUserBalanceHandler)
	api.Post("/user/:userId/deposit", s.depositHandler)
	api.Post("/user/:userId/withdraw", s.withdrawHandler)
	api.Get("/user/:userId/transactions", s.getTransactionsHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

// wsRequest is every field a client message may carry; Type selects which
// ones matter.
type wsRequest struct {
	Type        string          `json:"type"`
	BetID       string          `json:"bet_id"`
	Amount      decimal.Decimal `json:"amount"`
	AutoCashout decimal.Decimal `json:"auto_cashout"`
	Rounds      int             `json:"rounds"`
	StopProfit  decimal.Decimal `json:"stop_profit"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
}

// gameWebSocketHandler streams one player's session and accepts their
// commands on the same connection.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id")
	log := s.log.With(zap.String("user_id", userID))

	if userID == "" {
		data, _ := json.Marshal(game.WSMessage{Type: "error", Data: fiber.Map{"error": "user_id is required"}})
		conn.WriteMessage(websocket.TextMessage, data)
		conn.Close()
		return
	}

	ctx := context.Background()
	sess, err := s.session(ctx, userID)
	if err != nil {
		log.Warn("ws session unavailable", zap.Error(err))
		conn.Close()
		return
	}

	client := s.gameHub.RegisterClient(conn, userID)
	client.SendInitialState(sess.Snapshot())

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug("ws read ended", zap.Error(err))
			s.gameHub.UnregisterClient(conn)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			client.SendMessage(game.WSMessage{Type: "error", Data: fiber.Map{"error": "malformed message"}})
			continue
		}

		client.SendMessage(s.handleWSRequest(ctx, sess, req))
	}
}

func (s *FiberServer) handleWSRequest(ctx context.Context, sess *game.Session, req wsRequest) game.WSMessage {
	var (
		data interface{}
		err  error
	)

	switch req.Type {
	case "place_bet":
		data, err = sess.QueueWager(ctx, req.Amount, req.AutoCashout)
	case "cancel_bet":
		data, err = sess.CancelWager(ctx, req.BetID)
	case "cashout":
		data, err = sess.CashOut(ctx, req.BetID)
	case "start_autoplay":
		data, err = sess.StartAutoplay(ctx, game.AutoplayConfig{
			Stake:       req.Amount,
			Rounds:      req.Rounds,
			ProfitStop:  req.StopProfit,
			LossStop:    req.StopLoss,
			AutoCashout: req.AutoCashout,
		})
	case "stop_autoplay":
		data, err = sess.StopAutoplay(ctx)
	case "ping":
		return game.WSMessage{Type: "pong"}
	default:
		return game.WSMessage{Type: "error", Data: fiber.Map{"error": "unknown message type", "request": req.Type}}
	}

	if err != nil {
		return game.WSMessage{Type: "error", Data: fiber.Map{"error": err.Error(), "request": req.Type}}
	}
	return game.WSMessage{Type: req.Type + "_response", Data: data}
}
