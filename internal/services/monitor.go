package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"whatsapp-monitor/internal/models"
	"whatsapp-monitor/internal/utils"

	"github.com/google/uuid"
)

const (
	historyFetchTimeout = 15 * time.Second
	sendTimeout         = 10 * time.Second

	// Janela para casar o evento do insert durável com o envio otimista
	// ainda pendente (mesmo texto, autor agente).
	optimisticMatchWindow = 30 * time.Second
)

// ChangeEvent é o que o monitor emite para os clientes websocket depois de
// cada mutação reconciliada.
type ChangeEvent struct {
	Type         string                     `json:"type"` // conversation_updated | conversation_created
	Conversation models.ConversationSummary `json:"conversation"`
	Message      *models.Message            `json:"message,omitempty"`
}

type pendingEvent struct {
	row    models.MessageRow
	update bool
}

type pendingSend struct {
	conversationID string
	tempID         string
	text           string
	sentAt         time.Time
}

// Monitor é o dono único do conjunto de conversas. Toda mutação (carga de
// histórico, eventos do feed, envios, seleção) passa pelas regras de merge
// daqui, debaixo do mesmo mutex.
type Monitor struct {
	mu     sync.Mutex
	source DataSource

	conversations map[string]*models.Conversation // chave: telefone normalizado
	order         []string                        // IDs ordenados por última mensagem desc

	activeID      string
	historyLoaded bool
	pending       []pendingEvent // eventos chegados antes do histórico
	pendingSends  []pendingSend

	sub      Subscription
	listener func(ChangeEvent)
}

func NewMonitor(source DataSource) *Monitor {
	return &Monitor{
		source:        source,
		conversations: make(map[string]*models.Conversation),
	}
}

// SetChangeListener registra o callback de broadcast. Deve ser chamado antes
// de Start; o callback roda fora do lock do monitor.
func (m *Monitor) SetChangeListener(fn func(ChangeEvent)) {
	m.listener = fn
}

// Start assina o feed realtime e depois carrega o histórico. A ordem não
// importa: eventos que chegam antes do histórico ficam no buffer e são
// reaplicados pelo mesmo caminho de merge quando a carga termina.
func (m *Monitor) Start(ctx context.Context) error {
	sub, err := m.source.Subscribe(m.handleInsert, m.handleUpdate)
	if err != nil {
		return fmt.Errorf("erro ao assinar feed realtime: %v", err)
	}
	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()

	m.loadHistory(ctx)
	return nil
}

// Stop encerra a assinatura. Obrigatório antes de reconfigurar credenciais.
func (m *Monitor) Stop() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			utils.LogWarning("Erro ao encerrar assinatura realtime: %v", err)
		}
	}
}

// loadHistory faz a carga única do histórico e monta o conjunto inicial de
// conversas. Falha na busca degrada para conjunto vazio, nunca trava a tela.
func (m *Monitor) loadHistory(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, historyFetchTimeout)
	defer cancel()

	rows, err := m.source.FetchHistory(fetchCtx)
	if err != nil {
		utils.LogError("Erro ao buscar histórico, seguindo sem conversas: %v", err)
		rows = nil
	}

	m.mu.Lock()

	m.conversations = make(map[string]*models.Conversation)
	m.order = nil

	for _, row := range rows {
		if row.Phone == "" {
			continue
		}
		key := utils.NormalizePhone(row.Phone)
		msg := row.ToMessage()

		conv, ok := m.conversations[key]
		if !ok {
			conv = newConversation(key, row.Phone, row.DisplayName(), []string{"Histórico"})
			m.conversations[key] = conv
			m.order = append(m.order, key)
		} else if name := row.DisplayName(); name != "" && isPlaceholderName(conv) {
			// Só promove o nome enquanto a conversa ainda exibe o telefone
			conv.ContactName = name
		}

		conv.Messages = append(conv.Messages, msg)
		if msg.Timestamp.After(conv.LastMessageTime) {
			conv.LastMessage = msg.Text
			conv.LastMessageTime = msg.Timestamp
		}
	}

	for _, conv := range m.conversations {
		models.SortMessages(conv.Messages)
		refreshTail(conv)
	}
	m.sortConversationsLocked()

	if len(m.order) > 0 {
		m.activeID = m.order[0]
	} else {
		m.activeID = ""
	}

	m.historyLoaded = true
	replay := m.pending
	m.pending = nil

	utils.LogInfo("Histórico carregado: %d mensagens em %d conversas (%d eventos represados)",
		len(rows), len(m.order), len(replay))

	var events []ChangeEvent
	for _, p := range replay {
		if p.update {
			events = append(events, m.applyUpdateLocked(p.row)...)
		} else {
			events = append(events, m.applyInsertLocked(p.row)...)
		}
	}
	m.mu.Unlock()

	m.emit(events)
}

// handleInsert é o callback de INSERT do feed realtime.
func (m *Monitor) handleInsert(row models.MessageRow) {
	m.mu.Lock()
	if !m.historyLoaded {
		m.pending = append(m.pending, pendingEvent{row: row})
		m.mu.Unlock()
		return
	}
	events := m.applyInsertLocked(row)
	m.mu.Unlock()
	m.emit(events)
}

// handleUpdate é o callback de UPDATE do feed realtime.
func (m *Monitor) handleUpdate(row models.MessageRow) {
	m.mu.Lock()
	if !m.historyLoaded {
		m.pending = append(m.pending, pendingEvent{row: row, update: true})
		m.mu.Unlock()
		return
	}
	events := m.applyUpdateLocked(row)
	m.mu.Unlock()
	m.emit(events)
}

func (m *Monitor) applyInsertLocked(row models.MessageRow) []ChangeEvent {
	if row.Phone == "" {
		return nil
	}
	key := utils.NormalizePhone(row.Phone)
	msg := row.ToMessage()

	conv, ok := m.conversations[key]
	if !ok {
		// Telefone nunca visto: nasce uma conversa nova no topo da lista
		conv = newConversation(key, row.Phone, row.DisplayName(), []string{"Novo"})
		conv.UnreadCount = 1
		conv.Messages = []models.Message{msg}
		refreshTail(conv)
		m.conversations[key] = conv
		m.order = append([]string{key}, m.order...)
		return []ChangeEvent{{Type: "conversation_created", Conversation: conv.Summary(), Message: &msg}}
	}

	// O insert durável de um envio otimista chega com outro ID; casa por
	// autor + texto dentro da janela e substitui no lugar, nunca duplica.
	if msg.Sender == models.SenderAgent {
		if m.adoptDurableSendLocked(conv, key, msg) {
			m.sortConversationsLocked()
			return []ChangeEvent{{Type: "conversation_updated", Conversation: conv.Summary(), Message: &msg}}
		}
	}

	// Entrega at-least-once: o mesmo evento pode chegar duas vezes
	for _, existing := range conv.Messages {
		if existing.ID == msg.ID {
			return nil
		}
	}

	if name := row.DisplayName(); name != "" && isPlaceholderName(conv) {
		conv.ContactName = name
	}

	conv.Messages = append(conv.Messages, msg)
	models.SortMessages(conv.Messages)
	refreshTail(conv)
	conv.Status = models.ConversationActive

	// A supressão de não-lidas usa a seleção vigente agora, não a de
	// quando a assinatura foi criada.
	if key != m.activeID {
		conv.UnreadCount++
	}

	m.sortConversationsLocked()
	return []ChangeEvent{{Type: "conversation_updated", Conversation: conv.Summary(), Message: &msg}}
}

func (m *Monitor) applyUpdateLocked(row models.MessageRow) []ChangeEvent {
	if row.Phone == "" {
		return nil
	}
	key := utils.NormalizePhone(row.Phone)
	conv, ok := m.conversations[key]
	if !ok {
		// Update de conversa desconhecida não vira insert
		return nil
	}

	msg := row.ToMessage()
	replaced := false
	for i := range conv.Messages {
		if conv.Messages[i].ID == msg.ID {
			conv.Messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		return nil
	}

	models.SortMessages(conv.Messages)
	refreshTail(conv)
	m.sortConversationsLocked()
	return []ChangeEvent{{Type: "conversation_updated", Conversation: conv.Summary(), Message: &msg}}
}

// adoptDurableSendLocked tenta casar um insert de agente com um envio otimista
// pendente. Retorna true quando substituiu a mensagem temporária.
func (m *Monitor) adoptDurableSendLocked(conv *models.Conversation, key string, durable models.Message) bool {
	for i, p := range m.pendingSends {
		if p.conversationID != key || p.text != durable.Text {
			continue
		}
		delta := durable.Timestamp.Sub(p.sentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > optimisticMatchWindow {
			continue
		}
		for j := range conv.Messages {
			if conv.Messages[j].ID == p.tempID {
				conv.Messages[j] = durable
				models.SortMessages(conv.Messages)
				refreshTail(conv)
				m.pendingSends = append(m.pendingSends[:i], m.pendingSends[i+1:]...)
				return true
			}
		}
		// Mensagem temporária sumiu (não deveria); descarta o pendente
		m.pendingSends = append(m.pendingSends[:i], m.pendingSends[i+1:]...)
		return false
	}
	return false
}

// SendMessage faz o append otimista imediato e depois a escrita durável.
// O erro da escrita volta para o chamador; a mensagem otimista não é
// revertida: o operador vê o aviso e a thread segue consistente quando o
// evento durável chegar.
func (m *Monitor) SendMessage(ctx context.Context, conversationID, text string) (models.Message, error) {
	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		m.mu.Unlock()
		return models.Message{}, fmt.Errorf("conversa %s não encontrada", conversationID)
	}
	rawPhone := conv.ContactPhone

	now := time.Now()
	optimistic := models.Message{
		ID:           "temp-" + uuid.NewString(),
		Text:         text,
		Sender:       models.SenderAgent,
		Timestamp:    now,
		CreatedAtRaw: now.UTC().Format(time.RFC3339Nano),
		Status:       models.StatusSent,
		Type:         models.TypeText,
	}

	conv.Messages = append(conv.Messages, optimistic)
	models.SortMessages(conv.Messages)
	refreshTail(conv)
	m.sortConversationsLocked()
	m.pendingSends = append(m.pendingSends, pendingSend{
		conversationID: conversationID,
		tempID:         optimistic.ID,
		text:           text,
		sentAt:         now,
	})
	summary := conv.Summary()
	m.mu.Unlock()

	m.emit([]ChangeEvent{{Type: "conversation_updated", Conversation: summary, Message: &optimistic}})

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := m.source.SendMessage(sendCtx, text, rawPhone); err != nil {
		utils.LogError("Erro ao enviar mensagem para %s: %v", rawPhone, err)
		return optimistic, fmt.Errorf("erro ao enviar mensagem: %v", err)
	}
	return optimistic, nil
}

// SelectConversation troca a conversa aberta e zera o contador de não-lidas.
func (m *Monitor) SelectConversation(id string) (models.Conversation, error) {
	m.mu.Lock()
	conv, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return models.Conversation{}, fmt.Errorf("conversa %s não encontrada", id)
	}
	m.activeID = id
	conv.UnreadCount = 0
	copied := copyConversation(conv)
	summary := conv.Summary()
	m.mu.Unlock()

	m.emit([]ChangeEvent{{Type: "conversation_updated", Conversation: summary}})
	return copied, nil
}

// ActiveConversationID retorna a seleção vigente ("" quando não há conversa).
func (m *Monitor) ActiveConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Conversations devolve as projeções da lista, já ordenadas por última
// mensagem decrescente.
func (m *Monitor) Conversations() []models.ConversationSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]models.ConversationSummary, 0, len(m.order))
	for _, id := range m.order {
		summaries = append(summaries, m.conversations[id].Summary())
	}
	return summaries
}

// Conversation devolve uma cópia da thread completa.
func (m *Monitor) Conversation(id string) (models.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return copyConversation(conv), true
}

// HistoryLoaded indica se a carga inicial já terminou (a UI mostra o spinner
// enquanto isso).
func (m *Monitor) HistoryLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyLoaded
}

func (m *Monitor) emit(events []ChangeEvent) {
	if m.listener == nil {
		return
	}
	for _, ev := range events {
		m.listener(ev)
	}
}

func (m *Monitor) sortConversationsLocked() {
	sort.SliceStable(m.order, func(i, j int) bool {
		a := m.conversations[m.order[i]]
		b := m.conversations[m.order[j]]
		return a.LastMessageTime.After(b.LastMessageTime)
	})
}

func newConversation(key, rawPhone, name string, tags []string) *models.Conversation {
	if name == "" {
		name = utils.FormatPhone(rawPhone)
	}
	return &models.Conversation{
		ID:           key,
		ContactName:  name,
		ContactPhone: rawPhone,
		Status:       models.ConversationActive,
		Platform:     models.PlatformWhatsApp,
		Tags:         tags,
	}
}

// isPlaceholderName diz se a conversa ainda exibe o telefone formatado no
// lugar de um nome real.
func isPlaceholderName(conv *models.Conversation) bool {
	return conv.ContactName == utils.FormatPhone(conv.ContactPhone)
}

// refreshTail realinha o cache de última mensagem com o fim da sequência
// ordenada, a mais recente cronologicamente e não a última anexada.
func refreshTail(conv *models.Conversation) {
	if len(conv.Messages) == 0 {
		return
	}
	tail := conv.Messages[len(conv.Messages)-1]
	conv.LastMessage = tail.Text
	conv.LastMessageTime = tail.Timestamp
}

func copyConversation(conv *models.Conversation) models.Conversation {
	copied := *conv
	copied.Messages = append([]models.Message(nil), conv.Messages...)
	copied.Tags = append([]string(nil), conv.Tags...)
	return copied
}
