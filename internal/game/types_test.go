package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBetRequest_JSON(t *testing.T) {
	var req BetRequest
	body := `{"user_id":"user123","amount":"100.50","auto_cashout":2.5}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Failed to unmarshal BetRequest: %v", err)
	}

	if req.UserID != "user123" {
		t.Errorf("UserID = %v, want user123", req.UserID)
	}
	if !req.Amount.Equal(decimal.RequireFromString("100.50")) {
		t.Errorf("Amount = %v, want 100.50", req.Amount)
	}
	if !req.AutoCashout.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("AutoCashout = %v, want 2.5", req.AutoCashout)
	}
}

func TestAutoplayRequest_Config(t *testing.T) {
	req := AutoplayRequest{
		UserID:      "user123",
		Amount:      decimal.NewFromInt(10),
		Rounds:      3,
		StopProfit:  decimal.NewFromInt(50),
		StopLoss:    decimal.NewFromInt(20),
		AutoCashout: decimal.RequireFromString("2.00"),
	}

	cfg := req.Config()
	if !cfg.Stake.Equal(req.Amount) || cfg.Rounds != 3 {
		t.Errorf("Config() = %+v", cfg)
	}
	if !cfg.ProfitStop.Equal(req.StopProfit) || !cfg.LossStop.Equal(req.StopLoss) {
		t.Errorf("stop limits not carried over: %+v", cfg)
	}
	if !cfg.AutoCashout.Equal(req.AutoCashout) {
		t.Errorf("AutoCashout = %v, want 2.00", cfg.AutoCashout)
	}
}

func TestWagerView_HidesUnsettledFields(t *testing.T) {
	w := &Wager{
		ID:    "bet_001",
		Owner: OwnerPlayer,
		Stake: decimal.NewFromInt(10),
		State: WagerActive,
	}

	data, err := json.Marshal(viewOf(w))
	if err != nil {
		t.Fatalf("Failed to marshal WagerView: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal to map: %v", err)
	}
	for _, key := range []string{"exit_multiplier", "payout", "auto_cashout"} {
		if _, exists := jsonMap[key]; exists {
			t.Errorf("%s should not be in JSON output for an active wager", key)
		}
	}
	if jsonMap["state"] != string(WagerActive) {
		t.Errorf("state = %v, want %v", jsonMap["state"], WagerActive)
	}

	w.State = WagerCashedOut
	w.ExitMultiplier = decimal.RequireFromString("2.00")
	w.Payout = decimal.NewFromInt(20)
	v := viewOf(w)
	if v.ExitMultiplier == nil || v.Payout == nil {
		t.Fatal("cashed out wager should expose exit and payout")
	}
	if !v.Payout.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Payout = %v, want 20", v.Payout)
	}
}

func TestSnapshot_HidesCrashPointUntilSettled(t *testing.T) {
	snap := Snapshot{
		PlayerID:          "user_001",
		RoundID:           "round_123",
		Phase:             PhaseAscending,
		CurrentMultiplier: decimal.RequireFromString("1.42"),
		Commitment:        "abc123def456",
		UpdatedAt:         time.Now(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Failed to marshal Snapshot: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal to map: %v", err)
	}
	if _, exists := jsonMap["server_seed"]; exists {
		t.Error("server_seed should not be in JSON output before settlement")
	}
	if _, exists := jsonMap["crash_point"]; exists {
		t.Error("crash_point should not be in JSON output before settlement")
	}
	if jsonMap["current_multiplier"] != "1.42" {
		t.Errorf("current_multiplier = %v, want \"1.42\"", jsonMap["current_multiplier"])
	}
	if jsonMap["phase"] != string(PhaseAscending) {
		t.Errorf("phase = %v, want %v", jsonMap["phase"], PhaseAscending)
	}
}

func TestWagerNetProfit(t *testing.T) {
	stake := decimal.NewFromInt(10)

	tests := []struct {
		name  string
		wager Wager
		want  string
	}{
		{"cashed out", Wager{Stake: stake, State: WagerCashedOut, Payout: decimal.NewFromInt(20)}, "10"},
		{"lost", Wager{Stake: stake, State: WagerLost}, "-10"},
		{"cancelled", Wager{Stake: stake, State: WagerCancelled}, "0"},
		{"queued", Wager{Stake: stake, State: WagerQueued}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.wager.NetProfit(); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("NetProfit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWSMessage_JSON(t *testing.T) {
	msg := WSMessage{
		Type: "test_message",
		Data: map[string]interface{}{
			"key": "value",
			"num": 123,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal WSMessage: %v", err)
	}

	var decoded WSMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal WSMessage: %v", err)
	}

	if decoded.Type != msg.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, msg.Type)
	}
}
