// Package telemetry broadcasts fills over a websocket for a UI to observe,
// and posts run alerts to a Discord webhook.
package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"

	"backtestengine/internal/core"
	"backtestengine/internal/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FillMessage is the JSON frame broadcast to subscribers on every fill.
type FillMessage struct {
	Type string    `json:"type"`
	Fill core.Fill `json:"fill"`
}

// Hub fans out broadcast messages to every connected websocket client.
type Hub struct {
	log       *logger.Logger
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
}

// NewHub returns a Hub ready to Run and accept clients via Handler.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:       log,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 4096),
	}
}

// Run drains the broadcast channel to every connected client until the
// process exits; callers launch it in its own goroutine.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.lock.Lock()
		for client := range h.clients {
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.lock.Unlock()
	}
}

// BroadcastFill JSON-encodes f and fans it out to every connected client.
func (h *Hub) BroadcastFill(f core.Fill) {
	data, err := json.Marshal(FillMessage{Type: "fill", Fill: f})
	if err != nil {
		h.log.Warn("telemetry: fill marshal error", logger.F("error", err))
		return
	}
	h.broadcast <- data
}

// Handler upgrades incoming requests to websocket connections and
// registers them as broadcast subscribers.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("telemetry: upgrade error", logger.F("error", err))
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()
}

// ListenAndServe mounts Handler at /ws and blocks serving addr.
func (h *Hub) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.Handler)
	h.log.Info("telemetry server listening", logger.F("addr", addr))
	return http.ListenAndServe(addr, mux)
}
