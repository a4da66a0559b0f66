package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

// ChannelTrades carries trade and summary updates.
const ChannelTrades = "trades"

// recentTradesLimit bounds the trade history served by GET /api/v1/trades.
const recentTradesLimit = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub maintains active WebSocket connections and broadcasts messages.
// It is also an audit TradeObserver: every recorded trade and the final
// summary are pushed to subscribers of ChannelTrades.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Mutex for thread-safe access
	mu sync.RWMutex

	recentMu sync.Mutex
	recent   []TradeInfo

	Logger *zap.SugaredLogger
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Logger:     zap.NewNop().Sugar(),
	}
}

// Run starts the hub's main loop. On ctx cancellation every client's send
// channel is closed, which makes its writePump send a close frame.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.Logger.Infow("ws_client_connected", "client", client.id, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.Logger.Infow("ws_client_disconnected", "client", client.id, "total", len(h.clients))
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToChannel sends a message to all clients subscribed to a channel.
// It never blocks: a client with a full buffer misses the message.
func (h *Hub) BroadcastToChannel(channel string, data any) {
	message, err := json.Marshal(data)
	if err != nil {
		h.Logger.Errorw("ws_marshal_failed", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.IsSubscribed(channel) {
			select {
			case client.send <- message:
			default:
				// Buffer full, skip this client
			}
		}
	}
}

// OnTrade runs on the audit goroutine, so it only queues.
func (h *Hub) OnTrade(t core.Trade) {
	info := TradeInfo{
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Size:        t.Qty,
		Timestamp:   time.Now().UnixMilli(),
	}

	h.recentMu.Lock()
	h.recent = append(h.recent, info)
	if len(h.recent) > recentTradesLimit {
		h.recent = h.recent[len(h.recent)-recentTradesLimit:]
	}
	h.recentMu.Unlock()

	h.BroadcastToChannel(ChannelTrades, TradeUpdate{Type: "trade", TradeInfo: info})
}

func (h *Hub) OnSummary(s core.Summary) {
	h.BroadcastToChannel(ChannelTrades, SummaryUpdate{
		Type:          "summary",
		TotalVolume:   s.TotalVolume,
		TradeCount:    s.TradeCount,
		RejectedCount: s.RejectedCount,
		LastPrice:     s.LastPrice,
		Digest:        s.Digest.Hex(),
	})
}

// RecentTrades returns up to the last 100 trades, oldest first.
func (h *Hub) RecentTrades() []TradeInfo {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	out := make([]TradeInfo, len(h.recent))
	copy(out, h.recent)
	return out
}

var _ actors.TradeObserver = (*Hub)(nil)

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	// Subscribed channels
	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

// Subscribe adds a channel subscription
func (c *Client) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
	c.hub.Logger.Debugw("ws_subscribed", "client", c.id, "channel", channel)
}

// Unsubscribe removes a channel subscription
func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
	c.hub.Logger.Debugw("ws_unsubscribed", "client", c.id, "channel", channel)
}

// ack queues a confirmation on the client's own send buffer. The hub lock
// keeps it from racing a close of c.send.
func (c *Client) ack(kind string, channels []string) {
	msg, err := json.Marshal(WSAck{Type: kind, Channels: channels})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Warnw("ws_read_failed", "client", c.id, "err", err)
			}
			break
		}

		// Handle subscription requests
		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.Logger.Warnw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}

		switch req.Op {
		case "subscribe":
			for _, channel := range req.Channels {
				c.Subscribe(channel)
			}
			c.ack("subscribed", req.Channels)
		case "unsubscribe":
			for _, channel := range req.Channels {
				c.Unsubscribe(channel)
			}
			c.ack("unsubscribed", req.Channels)
		default:
			c.hub.Logger.Warnw("ws_unknown_op", "client", c.id, "op", req.Op)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection,
// one JSON document per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}

	select {
	case client.hub.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump(s.ctx)
}
