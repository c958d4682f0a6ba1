// Package api — WebSocket hub broadcasting live market activity.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/socialfi/market-ledger/internal/events"
	"github.com/socialfi/market-ledger/internal/metrics"
)

// WSMessage is a JSON message sent to WebSocket clients on market
// activity.
type WSMessage struct {
	Type      string `json:"type"`
	MarketID  string `json:"market_id"`
	PostRef   string `json:"post_ref"`
	Price     string `json:"price"`
	Supply    string `json:"supply"`
	Frozen    bool   `json:"frozen,omitempty"`
	TradeType string `json:"trade_type,omitempty"`
	Shares    string `json:"shares,omitempty"`
}

// WSHub fans ledger events out to connected WebSocket clients. Events
// arrive over a bus subscription; a slow client never blocks trade
// execution because the bus already drops rather than waits.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     <-chan events.Event
	mu         sync.RWMutex
}

// NewWSHub creates a hub subscribed to the bus. Pass nil to run the hub
// without an event feed (connections are accepted but see no traffic).
func NewWSHub(bus *events.Bus) *WSHub {
	var ch <-chan events.Event
	if bus != nil {
		ch, _ = bus.Subscribe()
	}
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		events:     ch,
	}
}

// Run starts the hub's main loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

// fanOut sends one event to every connected client, dropping clients
// whose writes fail.
func (h *WSHub) fanOut(ev events.Event) {
	data, err := json.Marshal(messageFromEvent(ev))
	if err != nil {
		return
	}

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.clients, conn)
			metrics.WebSocketClients.Dec()
		}
	}
	h.mu.Unlock()
}

func messageFromEvent(ev events.Event) WSMessage {
	msg := WSMessage{
		Type:     string(ev.Type),
		MarketID: ev.Market.ID,
		PostRef:  ev.Market.PostRef,
		Price:    ev.Market.PriceCurrent.String(),
		Supply:   ev.Market.TotalSupply.String(),
		Frozen:   ev.Market.IsFrozen,
	}
	if ev.Trade != nil {
		msg.TradeType = ev.Trade.Type
		msg.Shares = ev.Trade.Shares.String()
	}
	return msg
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
