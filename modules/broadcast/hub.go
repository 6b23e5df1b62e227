package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"

	"github.com/example/taskboard/protocol"
)

const (
	broadcastBuffer = 256
	writeWait       = 10 * time.Second
)

// ErrHubStopped is returned when frames are queued after shutdown.
var ErrHubStopped = errors.New("broadcast hub stopped")

// ErrClientNotFound is returned by SendTo for an unknown client.
var ErrClientNotFound = errors.New("client not connected")

// Sender is the write side of a websocket connection.
type Sender interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client represents a connected WebSocket client. Writes are serialized so
// hub broadcasts and direct replies never interleave on the socket.
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn Sender
	mu   sync.Mutex
}

// NewClient wraps a connection.
func NewClient(id, remoteAddr string, conn Sender) *Client {
	return &Client{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send writes one encoded frame.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.Close()
}

// Hub manages WebSocket connections and fans frames out to every client.
// Frames are written by a single goroutine in the order they were queued.
type Hub struct {
	clients   map[string]*Client
	broadcast chan []byte
	quit      chan struct{}
	done      chan struct{}
	mu        sync.RWMutex
	logger    types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan []byte, broadcastBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllClients()
			close(h.done)
			return
		case data := <-h.broadcast:
			h.handleBroadcast(data)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// closeAllClients stops accepting clients and closes every connection.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.quit)
	for _, client := range h.clients {
		client.close()
	}
	h.clients = make(map[string]*Client)
}

func (h *Hub) stopped() bool {
	select {
	case <-h.quit:
		return true
	default:
		return false
	}
}

func (h *Hub) handleBroadcast(data []byte) {
	h.mu.RLock()
	var failed []*Client
	for _, client := range h.clients {
		if err := client.Send(data); err != nil {
			h.logger.Warn("Failed to send to client", "clientID", client.ID, "error", err)
			failed = append(failed, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range failed {
		h.Unregister(client)
		client.close()
	}
}

// Register adds a client to the hub. The client receives every frame the
// hub writes after Register returns.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped() {
		return ErrHubStopped
	}
	h.clients[client.ID] = client
	h.logger.Info("Client registered", "clientID", client.ID, "remote", client.RemoteAddr)
	return nil
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.ID]; ok && current == client {
		delete(h.clients, client.ID)
		h.logger.Info("Client unregistered", "clientID", client.ID)
	}
}

// Broadcast queues an event for every connected client, the originator
// included. Frames queued by one goroutine are delivered in queue order.
func (h *Hub) Broadcast(event string, payload any) error {
	data, err := encode(event, "", payload)
	if err != nil {
		return err
	}
	if h.stopped() {
		return ErrHubStopped
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.quit:
		return ErrHubStopped
	}
}

// SendTo writes a frame to a single client immediately.
func (h *Hub) SendTo(clientID, event, ref string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}

	data, err := encode(event, ref, payload)
	if err != nil {
		return err
	}
	return client.Send(data)
}

// GetClient returns a client by ID.
func (h *Hub) GetClient(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(event, ref string, payload any) ([]byte, error) {
	frame, err := protocol.NewFrame(event, ref, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return data, nil
}
