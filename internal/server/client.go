// Package server manages individual WebSocket clients, handling read/write
// pumps, heartbeat liveness, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/relaychat/internal/identity"
)

const (
	writeWait      = 10 * time.Second
	persistTimeout = 5 * time.Second
)

// Client represents a WebSocket client connection in the chat system.
// It owns the outbound queue, the heartbeat monitor, and the identity bound
// at handshake time.
type Client struct {
	handle string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	log    *zap.Logger

	identity atomic.Pointer[identity.Identity]
	// resolved is the identity obtained during the handshake; the hub binds
	// it when the client is registered.
	resolved *identity.Identity

	liveness       *livenessMonitor
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client instance with the provided WebSocket connection,
// hub reference, and client address. The client's send channel is buffered
// to handle message queuing. conn may be nil, in which case no pumps run and
// payloads stay in the send channel.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		handle:         uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
	c.log = hub.logger().With(zap.String("conn", c.handle), zap.String("remote", addr))
	c.liveness = newLivenessMonitor(cfg.Heartbeat, c.ping, c.evict)
	return c
}

// WithIdentity records the identity resolved during the handshake. The hub
// binds it when the client is registered.
func (c *Client) WithIdentity(id identity.Identity) *Client {
	c.resolved = &id
	return c
}

// Handle returns the connection's unique handle.
func (c *Client) Handle() string {
	return c.handle
}

// Identity returns the bound identity, if any.
func (c *Client) Identity() (identity.Identity, bool) {
	id := c.identity.Load()
	if id == nil {
		return identity.Identity{}, false
	}
	return *id, true
}

// LivenessState returns the current heartbeat state.
func (c *Client) LivenessState() LivenessState {
	state, _, _ := c.liveness.snapshot()
	return state
}

// LastPongAt returns when the last pong was received.
func (c *Client) LastPongAt() time.Time {
	_, at, _ := c.liveness.snapshot()
	return at
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) bindIdentity(id identity.Identity) bool {
	return c.identity.CompareAndSwap(nil, &id)
}

// enqueue must only be called while the registry lock is held and the client
// is registered; the send channel is closed only after removal.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ping is the liveness probe. WriteControl is safe alongside the write pump.
func (c *Client) ping() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// evict is called once by the liveness monitor when a pong is missed.
func (c *Client) evict() {
	c.log.Info("Liveness timeout; evicting connection")
	c.hub.Unregister(c)
	c.closeConnection()
}

// setupReadConnection installs the pong handler that feeds the liveness monitor.
func (c *Client) setupReadConnection() {
	c.conn.SetPongHandler(func(string) error {
		c.liveness.pong()
		return nil
	})
}

// handleReadError logs the reason the read loop is ending.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("Client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket error", zap.Error(err))
	default:
		c.log.Warn("WebSocket read error", zap.Error(err))
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.log.Warn("Rate limit exceeded; discarding message",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

// processMessage hands a raw frame to the relay. Frames are handled one at a
// time, which keeps a sender's messages in order.
func (c *Client) processMessage(rawMessage []byte) {
	ctx, cancel := context.WithTimeout(c.hub.ctx, persistTimeout)
	defer cancel()

	delivered, err := c.hub.OnInboundFrame(ctx, c, rawMessage)
	if err != nil {
		if errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrUnboundSender) {
			c.log.Debug("Dropping inbound frame", zap.Error(err))
			return
		}
		c.log.Error("Relay failed", zap.Error(err))
		return
	}
	c.log.Debug("Relayed message", zap.Int("deliveries", delivered))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for message := range c.send {
		if !c.writeTextMessage(message) {
			return
		}
	}
	c.writeCloseMessage()
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection", zap.Error(err))
		}
	}
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() {
	if err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", zap.Error(err))
		}
	}
}

// writeTextMessage writes one payload as its own text frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", zap.Error(err))
		}
		return false
	}
	return true
}
