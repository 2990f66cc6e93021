package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"whatsapp-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentCall struct {
	text  string
	phone string
}

type fakeSub struct{ closed bool }

func (s *fakeSub) Close() error {
	s.closed = true
	return nil
}

type fakeSource struct {
	mu         sync.Mutex
	history    []models.MessageRow
	historyErr error
	contacts   []models.Contact
	byPhone    map[string]*models.Contact
	lookupErr  error
	sendErr    error
	sent       []sentCall
	lookups    int

	onInsert func(models.MessageRow)
	onUpdate func(models.MessageRow)
	sub      *fakeSub
}

func (f *fakeSource) FetchHistory(ctx context.Context) ([]models.MessageRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.history, f.historyErr
}

func (f *fakeSource) FetchContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.byPhone[phone], nil
}

func (f *fakeSource) FetchAllContacts(ctx context.Context) ([]models.Contact, error) {
	return f.contacts, nil
}

func (f *fakeSource) SendMessage(ctx context.Context, text, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentCall{text: text, phone: phone})
	return nil
}

func (f *fakeSource) Subscribe(onInsert, onUpdate func(models.MessageRow)) (Subscription, error) {
	f.onInsert = onInsert
	f.onUpdate = onUpdate
	f.sub = &fakeSub{}
	return f.sub, nil
}

func row(id int, phone, content, direction, createdAt string) models.MessageRow {
	return models.MessageRow{
		ID:        json.Number(fmt.Sprintf("%d", id)),
		Content:   content,
		Phone:     phone,
		Direction: direction,
		Status:    "delivered",
		Type:      "text",
		CreatedAt: createdAt,
	}
}

const (
	t1 = "2024-05-01T10:00:00.000001Z"
	t2 = "2024-05-01T10:05:00.000001Z"
	t3 = "2024-05-01T10:10:00.000001Z"
)

func startedMonitor(t *testing.T, source *fakeSource) *Monitor {
	t.Helper()
	m := NewMonitor(source)
	require.NoError(t, m.Start(context.Background()))
	require.NotNil(t, source.onInsert, "Subscribe deveria ter registrado os handlers")
	return m
}

func TestLoadHistoryGroupsAndOrders(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
		row(2, "5511999990000", "Hello", "outbound", t2),
	}}
	m := startedMonitor(t, source)

	convs := m.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "5511999990000", convs[0].ID)
	assert.Equal(t, "Hello", convs[0].LastMessage)

	conv, ok := m.Conversation("5511999990000")
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hi", conv.Messages[0].Text)
	assert.Equal(t, "Hello", conv.Messages[1].Text)

	// A conversa mais recente vira a aberta
	assert.Equal(t, "5511999990000", m.ActiveConversationID())
}

func TestLoadHistoryInsertEventExtendsThread(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
		row(2, "5511999990000", "Hello", "outbound", t2),
	}}
	m := startedMonitor(t, source)

	source.onInsert(row(3, "5511999990000", "Are you there?", "inbound", t3))

	conv, ok := m.Conversation("5511999990000")
	require.True(t, ok)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "Are you there?", conv.Messages[2].Text)
	assert.Equal(t, "Are you there?", conv.LastMessage)
	// Conversa aberta: contador suprimido
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestLoadHistoryFailureDegradesToEmpty(t *testing.T) {
	source := &fakeSource{historyErr: fmt.Errorf("backend fora do ar")}
	m := startedMonitor(t, source)

	assert.Empty(t, m.Conversations())
	assert.True(t, m.HistoryLoaded())
	assert.Equal(t, "", m.ActiveConversationID())
}

func TestInsertIsIdempotent(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
		row(2, "5521888880000", "Oi", "inbound", t2),
	}}
	m := startedMonitor(t, source)
	// Conversa 5521... é a mais recente, logo a aberta; eventos para 5511...
	// devem contar como não-lidos
	require.Equal(t, "5521888880000", m.ActiveConversationID())

	ev := row(3, "5511999990000", "Novidade", "inbound", t3)
	source.onInsert(ev)
	source.onInsert(ev)

	conv, ok := m.Conversation("5511999990000")
	require.True(t, ok)
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, 1, conv.UnreadCount, "evento duplicado não pode contar duas vezes")
}

func TestUnreadSuppressionFollowsSelection(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
		row(2, "5521888880000", "Oi", "inbound", t2),
	}}
	m := startedMonitor(t, source)

	source.onInsert(row(3, "5521888880000", "Para a aberta", "inbound", t3))
	conv, _ := m.Conversation("5521888880000")
	assert.Equal(t, 0, conv.UnreadCount)

	source.onInsert(row(4, "5511999990000", "Para a outra", "inbound", t3))
	conv, _ = m.Conversation("5511999990000")
	assert.Equal(t, 1, conv.UnreadCount)

	// O reconciliador lê a seleção vigente, não a do momento da assinatura
	_, err := m.SelectConversation("5511999990000")
	require.NoError(t, err)
	conv, _ = m.Conversation("5511999990000")
	assert.Equal(t, 0, conv.UnreadCount, "selecionar zera o contador")

	source.onInsert(row(5, "5511999990000", "Mais uma", "inbound", t3))
	conv, _ = m.Conversation("5511999990000")
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestNewPhoneCreatesConversationAtHead(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := startedMonitor(t, source)

	source.onInsert(row(2, "5521888880000", "Olá!", "inbound", t2))

	convs := m.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "5521888880000", convs[0].ID)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, 1, convs[0].MessageCount)
}

func TestTwoRawFormsResolveToOneConversation(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "+55 (11) 99999-0000", "Hi", "inbound", t1),
	}}
	m := startedMonitor(t, source)

	source.onInsert(row(2, "5511999990000", "Mesma pessoa", "inbound", t2))

	convs := m.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "5511999990000", convs[0].ID)
	assert.Equal(t, 2, convs[0].MessageCount)
}

func TestNameUpgradeOnlyOverwritesPlaceholder(t *testing.T) {
	withName := row(2, "5511999990000", "Hello", "inbound", t2)
	withName.ContatoNome = "Maria Souza"

	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
		withName,
	}}
	m := startedMonitor(t, source)

	conv, _ := m.Conversation("5511999990000")
	assert.Equal(t, "Maria Souza", conv.ContactName)

	// Evento sem nome não pode regredir para o telefone formatado
	source.onInsert(row(3, "5511999990000", "De novo", "inbound", t3))
	conv, _ = m.Conversation("5511999990000")
	assert.Equal(t, "Maria Souza", conv.ContactName)

	// Nem um evento com outro nome sobrescreve um nome real
	other := row(4, "5511999990000", "Outra", "inbound", t3)
	other.PushName = "M. Souza"
	source.onInsert(other)
	conv, _ = m.Conversation("5511999990000")
	assert.Equal(t, "Maria Souza", conv.ContactName)
}

func TestUpdateReplacesInPlace(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := startedMonitor(t, source)

	updated := row(1, "5511999990000", "Hi", "inbound", t1)
	updated.Status = "read"
	source.onUpdate(updated)

	conv, _ := m.Conversation("5511999990000")
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "read", conv.Messages[0].Status)
}

func TestUpdateUnknownIsNoOp(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := startedMonitor(t, source)

	// ID desconhecido na conversa conhecida
	source.onUpdate(row(99, "5511999990000", "Fantasma", "inbound", t2))
	conv, _ := m.Conversation("5511999990000")
	assert.Len(t, conv.Messages, 1)
	assert.Equal(t, "Hi", conv.LastMessage)

	// Conversa desconhecida não vira insert
	source.onUpdate(row(100, "5531777770000", "Fantasma", "inbound", t2))
	assert.Len(t, m.Conversations(), 1)
}

func TestOptimisticSendAppendsBeforeDurableWrite(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := startedMonitor(t, source)

	optimistic, err := m.SendMessage(context.Background(), "5511999990000", "Test")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, optimistic.Status)
	assert.Equal(t, models.SenderAgent, optimistic.Sender)

	conv, _ := m.Conversation("5511999990000")
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Test", conv.LastMessage)

	// A escrita durável recebe o telefone cru, não o normalizado
	require.Len(t, source.sent, 1)
	assert.Equal(t, "5511999990000", source.sent[0].phone)
}

func TestSendFailurePropagatesWithoutRollback(t *testing.T) {
	source := &fakeSource{
		history: []models.MessageRow{row(1, "5511999990000", "Hi", "inbound", t1)},
		sendErr: fmt.Errorf("credenciais inválidas"),
	}
	m := startedMonitor(t, source)

	_, err := m.SendMessage(context.Background(), "5511999990000", "Test")
	require.Error(t, err)

	// A mensagem otimista fica na thread mesmo com a falha
	conv, _ := m.Conversation("5511999990000")
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, "Test", conv.LastMessage)
}

func TestSendToUnknownConversationFails(t *testing.T) {
	source := &fakeSource{}
	m := startedMonitor(t, source)

	_, err := m.SendMessage(context.Background(), "555", "Test")
	assert.Error(t, err)
}

func TestDurableInsertAdoptsOptimisticMessage(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := startedMonitor(t, source)

	_, err := m.SendMessage(context.Background(), "5511999990000", "Test")
	require.NoError(t, err)

	// O insert durável chega com ID do servidor e o mesmo texto
	durable := row(2, "5511999990000", "Test", "outbound", time.Now().UTC().Format(time.RFC3339Nano))
	source.onInsert(durable)

	conv, _ := m.Conversation("5511999990000")
	require.Len(t, conv.Messages, 2, "o eco durável substitui a otimista, não duplica")
	assert.Equal(t, "2", conv.Messages[1].ID)
	assert.Equal(t, 0, conv.UnreadCount)

	// Um segundo envio do mesmo texto sem pendência vira append normal
	source.onInsert(row(3, "5511999990000", "Test", "outbound", time.Now().UTC().Format(time.RFC3339Nano)))
	conv, _ = m.Conversation("5511999990000")
	assert.Len(t, conv.Messages, 3)
}

func TestEventsBeforeHistoryAreBufferedAndReplayed(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := NewMonitor(source)

	// Simula a corrida: o feed entrega antes do histórico terminar
	_, err := source.Subscribe(m.handleInsert, m.handleUpdate)
	require.NoError(t, err)
	source.onInsert(row(2, "5521888880000", "Cheguei cedo", "inbound", t2))
	assert.Empty(t, m.Conversations(), "evento precisa ficar represado")

	m.loadHistory(context.Background())

	convs := m.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "5521888880000", convs[0].ID, "evento reaplicado pelo merge normal")
	assert.Equal(t, 1, convs[0].UnreadCount)
}

func TestConversationsSortedByLastMessageDesc(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Velha", "inbound", t1),
		row(2, "5521888880000", "Nova", "inbound", t2),
	}}
	m := startedMonitor(t, source)

	convs := m.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "5521888880000", convs[0].ID)

	// Mensagem nova na conversa antiga sobe ela para o topo
	source.onInsert(row(3, "5511999990000", "Subiu", "inbound", t3))
	convs = m.Conversations()
	assert.Equal(t, "5511999990000", convs[0].ID)
}

func TestStopClosesSubscription(t *testing.T) {
	source := &fakeSource{}
	m := startedMonitor(t, source)

	m.Stop()
	assert.True(t, source.sub.closed)
}

func TestChangeListenerReceivesEvents(t *testing.T) {
	source := &fakeSource{history: []models.MessageRow{
		row(1, "5511999990000", "Hi", "inbound", t1),
	}}
	m := NewMonitor(source)

	var mu sync.Mutex
	var events []ChangeEvent
	m.SetChangeListener(func(ev ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, m.Start(context.Background()))

	source.onInsert(row(2, "5521888880000", "Olá", "inbound", t2))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, "conversation_created", events[len(events)-1].Type)
}
