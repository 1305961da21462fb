package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/pkg/contracts/events"
)

const writeWait = 5 * time.Second

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer per connection
}

func (c *client) write(messageType int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, b)
}

// Hub fans activity updates out to websocket clients subscribed by event id.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{} // eventID -> clients
}

// NewHub builds a hub whose upgrader accepts the origins allowOrigin approves.
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS serves one connection until the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.EventID != "" {
				h.subscribe(c, msg.EventID)
			}
		case "unsubscribe":
			h.unsubscribe(c, msg.EventID)
		case "ping":
			_ = c.write(websocket.TextMessage, []byte(`{"type":"pong"}`))
		}
	}
}

func (h *Hub) subscribe(c *client, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[eventID]; !ok {
		h.subs[eventID] = make(map[*client]struct{})
	}
	h.subs[eventID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[eventID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, eventID)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Subscribers counts the clients that would receive an update for eventID.
func (h *Hub) Subscribers(eventID string) int {
	return len(h.targets(eventID))
}

func (h *Hub) targets(eventID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*client]struct{})
	var out []*client
	for _, key := range []string{eventID, AllEvents} {
		for c := range h.subs[key] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Broadcast sends the update to clients of its event and to clients of AllEvents.
func (h *Hub) Broadcast(update events.ActivityUpdate) {
	targets := h.targets(update.EventID)
	if len(targets) == 0 {
		return
	}
	b, err := json.Marshal(update)
	if err != nil {
		h.log.Warn("ws marshal failed", zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.write(websocket.TextMessage, b); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
		}
	}
}
