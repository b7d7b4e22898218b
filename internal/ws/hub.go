// Package ws is the trade/price broadcast feed: a read-only complement
// to getStockPrices for clients that would rather subscribe than poll.
// Adapted from the teacher's per-market hub, rekeyed from market_id to
// stock_id and swapped to structured logging.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Msg is one broadcast frame: type is "trade" or "best_price".
type Msg struct {
	Type    string `json:"type"`
	StockID string `json:"stock_id"`
	Data    any    `json:"data"`
}

// Hub manages per-stock_id WebSocket subscriptions.
type Hub struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	rooms   map[string]map[*conn]bool
	allConn map[*conn]bool
}

type conn struct {
	ws      *websocket.Conn
	send    chan []byte
	hub     *Hub
	stockID string
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		rooms:   make(map[string]map[*conn]bool),
		allConn: make(map[*conn]bool),
	}
}

// Publish implements engine.PublishFunc: fan the event out to every
// subscriber of stockID. Best-effort — a message for a client whose send
// buffer is full is dropped (the client stays connected), never allowed
// to block the matching path.
func (h *Hub) Publish(stockID, msgType string, data any) {
	msg := Msg{Type: msgType, StockID: stockID, Data: data}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	room := h.rooms[stockID]
	h.mu.RUnlock()
	for c := range room {
		select {
		case c.send <- b:
		default:
			h.logger.Warn().Str("stock_id", stockID).Msg("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and starts the connection's pumps.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("ws: upgrade failed")
		return
	}
	c := &conn{ws: wsConn, send: make(chan []byte, 64), hub: h}
	h.mu.Lock()
	h.allConn[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		var sub struct {
			Action  string `json:"action"`
			StockID string `json:"stock_id"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.hub.subscribe(c, sub.StockID)
		case "unsubscribe":
			c.hub.unsubscribe(c, sub.StockID)
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

func (h *Hub) subscribe(c *conn, stockID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.stockID != "" {
		if room, ok := h.rooms[c.stockID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.stockID)
			}
		}
	}
	c.stockID = stockID
	room, ok := h.rooms[stockID]
	if !ok {
		room = make(map[*conn]bool)
		h.rooms[stockID] = room
	}
	room[c] = true
}

func (h *Hub) unsubscribe(c *conn, stockID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[stockID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, stockID)
		}
	}
	if c.stockID == stockID {
		c.stockID = ""
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allConn, c)
	if c.stockID != "" {
		if room, ok := h.rooms[c.stockID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.stockID)
			}
		}
	}
	close(c.send)
}
