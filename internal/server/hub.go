package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/caroarena/caro-server-go/internal/config"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/replication"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 10
)

// Client is one WebSocket connection following a match. Player is board.NoPlayer for
// spectators, who receive the stream but cannot submit intents.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	matchID     string
	player      board.Player
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

// enqueue reports false when the send buffer is full. Writes after close are dropped.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub streams authority envelopes to WebSocket mirrors and accepts their intents.
type Hub struct {
	logger    *zap.Logger
	authority *replication.Authority
	seats     *SeatTokens
	cfg       config.WebSocketConfig
	upgrader  websocket.Upgrader

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub(logger *zap.Logger, authority *replication.Authority, seats *SeatTokens, cfg config.WebSocketConfig) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	h := &Hub{
		logger:     logger,
		authority:  authority,
		seats:      seats,
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Run owns the client set until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeOnce.Do(func() { close(h.done) })
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client registered",
				zap.String("match_id", client.matchID),
				zap.Stringer("player", client.player),
			)

		case client := <-h.unregister:
			h.drop(client)

		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// drop must only run on the Run goroutine.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.unsubscribe()
	client.close()
	h.logger.Debug("client unregistered",
		zap.String("match_id", client.matchID),
		zap.Stringer("player", client.player),
	)
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ServeHTTP upgrades /ws?match=<id>[&player=<1|2>&token=<seat token>].
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matchID := q.Get("match")
	if matchID == "" {
		http.Error(w, "match is required", http.StatusBadRequest)
		return
	}
	player := board.NoPlayer
	if raw := q.Get("player"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !board.Player(n).Valid() {
			http.Error(w, "player must be 1 or 2", http.StatusBadRequest)
			return
		}
		player = board.Player(n)
		if err := h.seats.Verify(matchID, player, q.Get("token")); err != nil {
			http.Error(w, "seat token rejected", http.StatusUnauthorized)
			return
		}
	}
	if _, err := h.authority.Engine().Snapshot(matchID); err != nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		matchID: matchID,
		player:  player,
	}

	unsubscribe, err := h.authority.Subscribe(matchID, client.deliver)
	if err != nil {
		_ = conn.WriteJSON(replication.ErrorEnvelope(matchID, err))
		conn.Close()
		return
	}
	client.unsubscribe = unsubscribe

	select {
	case h.register <- client:
	case <-h.done:
		unsubscribe()
		conn.Close()
		return
	}

	go client.writePump(h.cfg.PingInterval)
	go client.readPump()
}

// deliver queues an envelope without blocking the authority. A client that cannot keep
// up is disconnected.
func (c *Client) deliver(env replication.Envelope) {
	data, err := replication.Encode(env)
	if err != nil {
		c.hub.logger.Error("encode envelope", zap.String("match_id", c.matchID), zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		c.hub.logger.Warn("client too slow, disconnecting",
			zap.String("match_id", c.matchID),
			zap.Stringer("player", c.player),
		)
		go c.hub.leave(c)
	}
}

// reply answers the client directly, outside the match stream.
func (c *Client) reply(env replication.Envelope) {
	data, err := replication.Encode(env)
	if err != nil {
		c.hub.logger.Error("encode reply", zap.String("match_id", c.matchID), zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Info("websocket read failed", zap.String("match_id", c.matchID), zap.Error(err))
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	env, err := replication.Decode(message)
	if err != nil {
		c.reply(replication.ErrorEnvelope(c.matchID, err))
		return
	}
	if env.Kind != replication.KindIntent {
		c.reply(replication.ErrorEnvelope(c.matchID, fmt.Errorf("cannot accept %s envelopes", env.Kind)))
		return
	}
	if env.MatchID != c.matchID {
		c.reply(replication.ErrorEnvelope(c.matchID, replication.ErrMatchMismatch))
		return
	}
	if c.player == board.NoPlayer || env.Intent.Player != c.player {
		c.reply(replication.ErrorEnvelope(c.matchID, fmt.Errorf("%w: connection does not hold seat %s", ErrSeatDenied, env.Intent.Player)))
		return
	}

	res, err := c.hub.authority.Submit(c.matchID, *env.Intent)
	if err != nil {
		c.reply(replication.ErrorEnvelope(c.matchID, err))
		return
	}
	c.reply(replication.ResultEnvelope(c.matchID, *env.Intent, res))
}

func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
