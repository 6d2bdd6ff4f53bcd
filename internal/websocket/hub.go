package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/vidinsight/api/internal/model"
)

// Client represents a WebSocket client watching one video
type Client struct {
	VideoID string
	Conn    *websocket.Conn
	Send    chan []byte
}

// Subscriber delivers store change notifications to relay.
type Subscriber interface {
	Subscribe(ctx context.Context, tables ...model.ChangeTable) (<-chan model.ChangeEvent, func())
}

// Hub fans store change events out to the WebSocket clients subscribed
// to the affected video. It is the browser-facing face of the push
// channel; delivery is best-effort and clients are expected to poll as
// a fallback.
type Hub struct {
	// Clients grouped by video ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to video subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	VideoID string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.VideoID] == nil {
				h.clients[client.VideoID] = make(map[*Client]bool)
			}
			h.clients[client.VideoID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for video %s", client.VideoID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.VideoID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.VideoID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from video %s", client.VideoID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.VideoID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Relay consumes store change events and broadcasts each one to the
// affected video's subscribers until ctx ends.
func (h *Hub) Relay(ctx context.Context, sub Subscriber) {
	events, cancel := sub.Subscribe(ctx, model.TableVideoJobs, model.TableAnalyses)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Failed to marshal change event: %v", err)
				continue
			}
			h.broadcast <- &BroadcastMessage{
				VideoID: ev.VideoID,
				Message: data,
			}
		}
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, videoID string) {
	client := &Client{
		VideoID: videoID,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop — clients only listen, but reads drive close detection
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}
