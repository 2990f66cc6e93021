package supabase

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"whatsapp-monitor/internal/models"
	"whatsapp-monitor/internal/services"
	"whatsapp-monitor/internal/utils"

	"github.com/gorilla/websocket"
)

const (
	messagesTopic     = "realtime:public:messages"
	heartbeatInterval = 30 * time.Second
	reconnectDelay    = 3 * time.Second
)

// phxMessage é o envelope do protocolo phoenix usado pelo canal realtime.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// changePayload carrega a linha nova completa, no mesmo formato das linhas do
// histórico.
type changePayload struct {
	Type   string            `json:"type"`
	Record models.MessageRow `json:"record"`
}

type subscription struct {
	client   *Client
	onInsert func(models.MessageRow)
	onUpdate func(models.MessageRow)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// Subscribe abre o websocket do feed de mudanças e entrega cada INSERT/UPDATE
// da tabela messages para os handlers. A goroutine de leitura reconecta
// sozinha até Close ser chamado.
func (c *Client) Subscribe(onInsert, onUpdate func(models.MessageRow)) (services.Subscription, error) {
	if onInsert == nil || onUpdate == nil {
		return nil, fmt.Errorf("handlers de insert e update são obrigatórios")
	}

	sub := &subscription{
		client:   c,
		onInsert: onInsert,
		onUpdate: onUpdate,
		done:     make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

func (s *subscription) run() {
	for {
		if s.isClosed() {
			return
		}

		conn, err := s.dial()
		if err != nil {
			utils.LogWarning("Erro ao conectar no realtime, nova tentativa em %s: %v", reconnectDelay, err)
			if !s.sleep(reconnectDelay) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if s.isClosed() {
			return
		}
		utils.LogWarning("Conexão realtime caiu, reconectando em %s", reconnectDelay)
		if !s.sleep(reconnectDelay) {
			return
		}
	}
}

func (s *subscription) dial() (*websocket.Conn, error) {
	wsURL := strings.Replace(s.client.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = fmt.Sprintf("%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0", wsURL, s.client.apiKey)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}

	join := phxMessage{
		Topic:   messagesTopic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     "1",
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("erro ao entrar no canal: %v", err)
	}

	utils.LogInfo("Monitorando a tabela messages em tempo real")
	return conn, nil
}

func (s *subscription) readLoop(conn *websocket.Conn) {
	stopHeartbeat := make(chan struct{})
	go s.heartbeat(conn, stopHeartbeat)
	defer close(stopHeartbeat)

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !s.isClosed() {
				utils.LogDebug("Leitura do realtime interrompida: %v", err)
			}
			return
		}

		switch msg.Event {
		case "INSERT", "UPDATE":
			var change changePayload
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				utils.LogWarning("Evento realtime com payload inválido: %v", err)
				continue
			}
			if change.Record.Phone == "" {
				continue
			}
			if msg.Event == "INSERT" {
				s.onInsert(change.Record)
			} else {
				s.onUpdate(change.Record)
			}
		case "phx_reply", "phx_error", "presence_state":
			// Controle do canal, nada a reconciliar
		}
	}
}

func (s *subscription) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			beat := phxMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(beat); err != nil {
				return
			}
		}
	}
}

func (s *subscription) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) sleep(d time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(d):
		return true
	}
}

// Close encerra a assinatura e derruba a conexão. Precisa rodar antes de
// abrir uma nova assinatura com outras credenciais.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		conn.Close()
	}
	return nil
}
