package handlers

import (
	"net/http"

	"whatsapp-monitor/internal/wsnotify"
)

// NewWebSocketHandler registra o navegador no hub de push. A conexão só lê
// para detectar o fechamento; todo o tráfego útil sai pelo Broadcast.
func NewWebSocketHandler(hub *wsnotify.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsnotify.Upgrader().Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddClient(conn)
		defer func() {
			hub.RemoveClient(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
