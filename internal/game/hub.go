package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"flightdeck/internal/logger"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// size of each client's outbound queue
const clientQueueSize = 64

// Client is one websocket connection. Everything written to it goes through
// queue and is drained by a single writer goroutine, so messages arrive in
// the order they were queued.
type Client struct {
	conn   Conn
	userID string
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
}

type outbound struct {
	userID string // empty means every client
	data   []byte
}

// Hub fans session events and snapshots out to websocket clients. A player
// only receives messages about their own session.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.Named("ws"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", zap.String("user_id", client.userID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.stop()
				client.conn.Close()
				h.log.Info("client disconnected", zap.String("user_id", client.userID), zap.Int("total", len(h.clients)))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if msg.userID == "" || client.userID == msg.userID {
					client.enqueue(msg.data)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops Run. Connections are left to their handlers.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) Broadcast(message interface{}) {
	h.enqueue("", message)
}

// SendTo delivers message to every connection of userID.
func (h *Hub) SendTo(userID string, message interface{}) {
	h.enqueue(userID, message)
}

func (h *Hub) enqueue(userID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("marshal message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{userID: userID, data: data}:
	default:
		h.log.Warn("broadcast channel full, dropping message", zap.String("user_id", userID))
	}
}

// HandleEvent forwards a session event to its player.
func (h *Hub) HandleEvent(e Event) {
	h.SendTo(e.PlayerID, WSMessage{Type: string(e.Type), Data: e})
}

// PublishSnapshot is installed as the sessions' snapshot handler.
func (h *Hub) PublishSnapshot(snap *Snapshot) {
	if snap == nil || !h.hasClient(snap.PlayerID) {
		return
	}
	h.SendTo(snap.PlayerID, WSMessage{Type: "state", Data: snap})
}

func (h *Hub) hasClient(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.userID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue hands data to the writer without blocking. A client that has
// fallen a full queue behind loses the message.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.queue <- data:
	default:
		logger.Log.Warn("ws client queue full, dropping message", zap.String("user_id", c.userID))
	}
}

func (c *Client) send(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("ws send marshal", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Log.Warn("ws write failed", zap.String("user_id", c.userID), zap.Error(err))
			}
		}
	}
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// SendInitialState queues the current snapshot for one connection.
func (c *Client) SendInitialState(snap *Snapshot) {
	if snap != nil {
		c.send(WSMessage{Type: "initial_state", Data: snap})
	}
}

// SendMessage answers a single client request.
func (c *Client) SendMessage(msg WSMessage) {
	c.send(msg)
}

func (h *Hub) RegisterClient(conn Conn, userID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		queue:  make(chan []byte, clientQueueSize),
		done:   make(chan struct{}),
	}
	go client.writeLoop()
	select {
	case h.register <- client:
	case <-h.done:
		client.stop()
	}
	return client
}

func (h *Hub) UnregisterClient(conn Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			select {
			case h.unregister <- client:
			case <-h.done:
				client.stop()
			}
			return
		}
	}
	h.mu.RUnlock()
}
