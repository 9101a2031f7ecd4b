package server

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/hxnx/karaoked/internal/session"
)

// WSMessage is the envelope for both directions of the websocket.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outboundMsg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans session events out to every connected client. It holds no session
// state of its own, only the manager reference and the connection set.
type Hub struct {
	manager *session.Manager

	mutex      sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
}

func NewHub(manager *session.Manager) *Hub {
	return &Hub{
		manager:    manager,
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client connected: %s", client.socketID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.drop()
			}
			h.mutex.Unlock()
			log.Printf("Client disconnected: %s", client.socketID)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if !client.enqueue(message) {
					// Slow consumer; drop it rather than stall the session.
					delete(h.clients, client)
					client.drop()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Broadcast relays one payload to every client. Payloads are forwarded
// verbatim; the hub never rewrites what the core emitted.
func (h *Hub) Broadcast(msgType string, data any) {
	raw, err := json.Marshal(outboundMsg{Type: msgType, Data: data})
	if err != nil {
		log.Printf("Error: failed to marshal broadcast message: %v", err)
		return
	}
	h.broadcast <- raw
}

// BindSessionEvents subscribes the hub to every event the manager emits.
func (h *Hub) BindSessionEvents() {
	events := []session.EventType{
		session.EventSessionCreated,
		session.EventSessionDestroyed,
		session.EventUserJoined,
		session.EventUserLeft,
		session.EventQueueUpdated,
		session.EventSongStarted,
		session.EventSongEnded,
		session.EventPlaybackChanged,
	}
	for _, ev := range events {
		h.manager.Subscribe(ev, func(e session.Event) {
			h.Broadcast(string(e.Type), e.Payload)
		})
	}
}
