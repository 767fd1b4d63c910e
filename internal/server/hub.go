// Package server coordinates client registration, identity binding, roster
// broadcast, and connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/store"
)

// Hub owns the connection registry. Registration, removal, and roster
// broadcasts are serialized on the Run goroutine; relays run on each
// sender's read goroutine and only touch the registry through its lock.
type Hub struct {
	registry   *Registry
	store      store.Persister
	log        *zap.Logger
	register   chan *Client
	unregister chan *Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	rosterBroadcasts atomic.Int64
}

// NewHub creates and initializes a new Hub that persists relayed messages
// through p. A nil logger disables logging.
func NewHub(p store.Persister, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		store:      p,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) logger() *zap.Logger {
	if h == nil || h.log == nil {
		return zap.NewNop()
	}
	return h.log
}

// Registry exposes the live connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// RosterBroadcasts returns how many roster broadcasts have been issued.
func (h *Hub) RosterBroadcasts() int64 {
	return h.rosterBroadcasts.Load()
}

// Register hands a freshly accepted client to the hub. It returns false if
// the hub is shutting down, in which case the caller owns the connection.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister asks the hub to remove c. Removing a client twice is harmless.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			if h.remove(client, "closed") {
				h.broadcastRoster()
			}
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	if _, err := h.registry.Register(c); err != nil {
		c.log.Warn("Rejecting connection", zap.Error(err))
		c.liveness.halt()
		c.closeConnection()
		return
	}

	if c.resolved != nil && h.registry.Bind(c.handle, *c.resolved) {
		c.log = c.log.With(zap.String("user", c.resolved.UserID))
	}
	h.log.Info("Client registered",
		zap.String("conn", c.handle),
		zap.String("remote", c.addr),
		zap.Int("clients", h.registry.Len()))

	h.broadcastRoster()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.liveness.run()
	}()

	if c.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// remove takes c out of the registry, stops its heartbeat, and closes its
// send queue. It reports whether c was still registered.
func (h *Hub) remove(c *Client, reason string) bool {
	if _, ok := h.registry.Unregister(c.handle); !ok {
		return false
	}
	c.liveness.halt()
	close(c.send)
	h.log.Info("Client unregistered",
		zap.String("conn", c.handle),
		zap.String("reason", reason),
		zap.Int("clients", h.registry.Len()))
	return true
}

// dropSlow removes clients whose send queue overflowed.
func (h *Hub) dropSlow(clients []*Client) bool {
	removed := false
	for _, c := range clients {
		if h.remove(c, "send queue full") {
			removed = true
		}
	}
	return removed
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	clients := h.registry.drain()
	for _, c := range clients {
		c.liveness.halt()
		close(c.send)
		c.closeConnection()
	}

	h.log.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
