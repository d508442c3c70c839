package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []WSMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []WSMessage
	for _, raw := range c.messages {
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_GetClientCount(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}

	conn := &fakeConn{}
	hub.RegisterClient(conn, "alice")
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	hub.UnregisterClient(conn)
	waitFor(t, func() bool { return hub.GetClientCount() == 0 })

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.closed {
		t.Error("unregistered connection was not closed")
	}
}

func TestHub_SendToOnlyReachesThatPlayer(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	alice, bob := &fakeConn{}, &fakeConn{}
	hub.RegisterClient(alice, "alice")
	hub.RegisterClient(bob, "bob")
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })

	hub.HandleEvent(Event{Type: EventRoundStarted, PlayerID: "alice", RoundID: "r1"})
	waitFor(t, func() bool { return len(alice.received()) == 1 })

	if got := alice.received()[0].Type; got != string(EventRoundStarted) {
		t.Errorf("message type = %q, want %q", got, EventRoundStarted)
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(bob.received()); n != 0 {
		t.Errorf("bob received %d messages meant for alice", n)
	}
}

func TestHub_BroadcastReachesEveryone(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	alice, bob := &fakeConn{}, &fakeConn{}
	hub.RegisterClient(alice, "alice")
	hub.RegisterClient(bob, "bob")
	waitFor(t, func() bool { return hub.GetClientCount() == 2 })

	hub.Broadcast(WSMessage{Type: "maintenance"})
	waitFor(t, func() bool { return len(alice.received()) == 1 && len(bob.received()) == 1 })
}

func TestHub_PreservesOrderPerClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	conn := &fakeConn{}
	hub.RegisterClient(conn, "alice")
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	const total = 50
	for i := 0; i < total; i++ {
		hub.SendTo("alice", WSMessage{Type: "seq", Data: i})
	}
	waitFor(t, func() bool { return len(conn.received()) == total })

	for i, msg := range conn.received() {
		if n, _ := msg.Data.(float64); int(n) != i {
			t.Fatalf("message %d carried %v, want %d", i, msg.Data, i)
		}
	}
}

func TestHub_ClientRepliesInOrder(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	conn := &fakeConn{}
	client := hub.RegisterClient(conn, "alice")
	client.SendInitialState(&Snapshot{PlayerID: "alice"})
	client.SendMessage(WSMessage{Type: "pong"})
	waitFor(t, func() bool { return len(conn.received()) == 2 })

	got := conn.received()
	if got[0].Type != "initial_state" || got[1].Type != "pong" {
		t.Errorf("types = %q, %q; want initial_state, pong", got[0].Type, got[1].Type)
	}
}

func TestHub_PublishSnapshotSkipsDisconnectedPlayers(t *testing.T) {
	hub := NewHub()

	hub.PublishSnapshot(&Snapshot{PlayerID: "ghost"})
	hub.PublishSnapshot(nil)

	if n := len(hub.broadcast); n != 0 {
		t.Errorf("queued %d messages for a player with no connection", n)
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()

	// Run is not started, so the channel fills up
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.Broadcast(map[string]string{"msg": "test"})
	}

	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(map[string]string{"msg": "overflow"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentSends(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.SendTo("alice", map[string]interface{}{"type": "test", "value": n})
			_ = hub.GetClientCount()
		}(i)
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("concurrent sends timed out")
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	message := map[string]interface{}{
		"type": "benchmark",
		"data": "test_data",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(message)
	}
}
