package wsnotify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub distribui os eventos reconciliados do monitor para os navegadores
// conectados. Construído pelo composition root e compartilhado entre os
// handlers.
type Hub struct {
	clients map[*websocket.Conn]bool
	lock    sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Upgrader() *websocket.Upgrader {
	return &upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.clients[conn] = true
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.clients, conn)
}

func (h *Hub) ClientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(event interface{}) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(event); err != nil {
			client.Close()
			go h.RemoveClient(client)
		}
	}
}
