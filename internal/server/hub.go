// Package server tracks live connections through the Hub so they can be
// counted and torn down together on shutdown.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub owns the set of live connection handlers. It launches each handler's
// goroutine and closes every tracked transport on shutdown.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates a Hub. Run must be started before clients are registered.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Register hands a new client to the hub, which starts serving it. It
// returns false once the hub is shutting down; the caller then owns the
// client's transport.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) release(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.mutex.Lock()
		delete(h.clients, client)
		h.mutex.Unlock()
	}
}

// Run is the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("Client registered", "addr", client.addr, "clients", clientCount)

			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				client.Serve()
				h.release(client)
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			delete(h.clients, client)
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("Client unregistered", "addr", client.addr, "clients", clientCount)
		}
	}
}

// Count returns the number of tracked connections, authenticated or not.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every tracked transport. Closing the transport
// ends the ingest read, which in turn ends the handler.
func (h *Hub) shutdownClients() {
	clients := h.getClientSnapshot()
	for _, client := range clients {
		client.closeTransport()
	}
	h.logger.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for every handler to finish, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some connections may still be running")
		return context.DeadlineExceeded
	}
}
