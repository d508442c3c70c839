package game

import "time"

type EventType string

const (
	EventRoundStarted    EventType = "round_start"
	EventRoundLaunched   EventType = "round_running"
	EventWagerQueued     EventType = "bet_placed"
	EventWagerCommitted  EventType = "bet_active"
	EventWagerSkipped    EventType = "bet_skipped"
	EventWagerCancelled  EventType = "bet_cancelled"
	EventCashedOut       EventType = "cashout"
	EventRoundSettled    EventType = "crash"
	EventAutoplayStopped EventType = "autoplay_stopped"
	EventHalted          EventType = "halted"
)

// Event describes one completed transition. Sessions deliver events after
// releasing their lock, so a listener may call back into the session.
type Event struct {
	Type       EventType       `json:"type"`
	PlayerID   string          `json:"player_id"`
	RoundID    string          `json:"round_id,omitempty"`
	Commitment string          `json:"commitment,omitempty"`
	Wager      *WagerView      `json:"wager,omitempty"`
	Result     *RoundResult    `json:"result,omitempty"`
	Autoplay   *AutoplayStatus `json:"autoplay,omitempty"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

type Listener interface {
	HandleEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) {
	f(e)
}
