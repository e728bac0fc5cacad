package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 64

	// chanAll receives every receipt; per-account channels are
	// "orders:<lowercase hex address>".
	chanAll = "orders"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware in front
	// of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans order receipts out to WebSocket subscribers. Connections
// register themselves on upgrade and are dropped when their send buffer
// stalls; there is no run loop to start.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	log     *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		log:     log,
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ws_connected", "remote", c.remote, "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ws_disconnected", "remote", c.remote, "clients", n)
}

// BroadcastReceipt delivers a receipt to every client subscribed to the
// account's channel or to the firehose. Slow clients are skipped, not
// blocked on.
func (h *Hub) BroadcastReceipt(receipt orders.Receipt) {
	event := WSReceiptEvent{
		Channel: chanAll + ":" + strings.ToLower(receipt.Account.Hex()),
		Receipt: receipt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Errorw("ws_marshal_failed", "action", receipt.Action, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(chanAll) && !c.subscribed(event.Channel) {
			continue
		}
		select {
		case c.send <- payload:
		default:
		}
	}
}

// wsClient is one WebSocket connection with its channel subscriptions.
type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string

	subMu sync.RWMutex
	subs  map[string]struct{}
}

func (c *wsClient) subscribed(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[channel]
	return ok
}

func (c *wsClient) setSubscribed(channel string, on bool) {
	channel = strings.ToLower(channel)
	c.subMu.Lock()
	if on {
		c.subs[channel] = struct{}{}
	} else {
		delete(c.subs, channel)
	}
	c.subMu.Unlock()
}

// readLoop consumes subscribe/unsubscribe requests until the connection
// drops, then unregisters the client.
func (c *wsClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("ws_read_failed", "remote", c.remote, "err", err)
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.log.Warnw("ws_bad_message", "remote", c.remote, "err", err)
			continue
		}
		switch req.Op {
		case "subscribe":
			for _, channel := range req.Channels {
				c.setSubscribed(channel, true)
			}
		case "unsubscribe":
			for _, channel := range req.Channels {
				c.setSubscribed(channel, false)
			}
		default:
			c.hub.log.Warnw("ws_unknown_op", "remote", c.remote, "op", req.Op)
		}
	}
}

// writeLoop drains the send buffer to the connection and keeps it alive
// with pings.
func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	client := &wsClient{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		remote: conn.RemoteAddr().String(),
		subs:   make(map[string]struct{}),
	}
	s.hub.add(client)
	go client.writeLoop()
	go client.readLoop()
}
