package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"chainstream/internal/chain"
)

// Hub fans the latest chain snapshot out to WebSocket subscribers.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *snapshotMessage
	encoder    *Encoder
	mu         sync.RWMutex
	logger     *zap.Logger
}

// snapshotMessage holds both wire forms of one snapshot. Each client receives
// the form matching its negotiated encoding.
type snapshotMessage struct {
	plain      []byte
	compressed []byte
}

// snapshotEnvelope is the JSON frame sent to subscribers.
type snapshotEnvelope struct {
	Type  string            `json:"type"`
	Count int               `json:"count"`
	Rows  []chain.OptionRow `json:"rows"`
}

func NewHub(encoder *Encoder, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *snapshotMessage, 256),
		encoder:    encoder,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				payload := msg.plain
				if client.compressed {
					payload = msg.compressed
				}
				select {
				case client.send <- payload:
				default:
					// Buffer full, schedule disconnect
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// BroadcastSnapshot publishes a full replacement snapshot to all subscribers.
func (h *Hub) BroadcastSnapshot(rows []chain.OptionRow) {
	envelope := snapshotEnvelope{Type: "snapshot", Count: len(rows), Rows: rows}
	plain, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Warn("failed to marshal snapshot", zap.Error(err))
		return
	}

	msg := &snapshotMessage{plain: plain}
	if h.encoder != nil {
		msg.compressed = h.encoder.Encode(plain)
	} else {
		msg.compressed = plain
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping snapshot")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
