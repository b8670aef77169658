package service

import (
	"time"

	"tiergate/internal/metrics"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"
)

// Client is one connected SSE subscriber. CompanyID scopes which override
// messages it sees; "*" (dashboard) sees everything.
type Client struct {
	Send      chan v1.Message
	CompanyID string
}

type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan v1.Message
	Register   chan *Client
	Unregister chan *Client

	observer  metrics.HubObserver
	heartbeat time.Duration
	bufSize   int
}

func NewHub(observer metrics.HubObserver, heartbeat time.Duration, bufSize int) *Hub {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	if bufSize <= 0 {
		bufSize = 512
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan v1.Message, bufSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		observer:   observer,
		heartbeat:  heartbeat,
		bufSize:    bufSize,
	}
}

func (h *Hub) Run() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			h.observer.IncOnline()
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.observer.DecOnline()
			}
		case <-ticker.C:
			h.send(v1.Message{Kind: constraints.KindPing})
		case message := <-h.Broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) send(msg v1.Message) {
	for client := range h.clients {
		if !h.wants(client, msg) {
			continue
		}
		select {
		case client.Send <- msg:
			if msg.Kind != constraints.KindPing {
				h.observer.RecordPush()
			}
		default:
			// Slow consumer, drop it; the SDK reconnects with last_rev.
			logger.Warn("dropping slow stream client")
			close(client.Send)
			delete(h.clients, client)
			h.observer.DecOnline()
		}
	}
}

func (h *Hub) wants(c *Client, msg v1.Message) bool {
	if msg.Kind == constraints.KindPing || msg.Kind == constraints.KindFlag {
		return true
	}
	return c.CompanyID == "*" || c.CompanyID == msg.CompanyID
}
