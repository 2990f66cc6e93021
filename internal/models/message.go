package models

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// Status da mensagem para as barrinhas de confirmação
const (
	StatusSent      = "sent"      // Uma barra (enviado)
	StatusDelivered = "delivered" // Duas barras (entregue)
	StatusRead      = "read"      // Duas barras azuis (lido)
)

const (
	SenderAgent    = "agent"
	SenderCustomer = "customer"
)

const (
	TypeText   = "text"
	TypeImage  = "image"
	TypeSystem = "system"
)

type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"` // agent ou customer
	Timestamp time.Time `json:"timestamp"`
	// CreatedAtRaw guarda a string original do banco (com microssegundos)
	// para ordenação precisa quando dois timestamps truncam igual.
	CreatedAtRaw string `json:"created_at_raw,omitempty"`
	Status       string `json:"status"`
	Type         string `json:"type"`
}

// MessageRow é a linha crua da tabela messages, no mesmo formato tanto no
// histórico quanto nos eventos do feed realtime.
type MessageRow struct {
	ID          json.Number `json:"id"`
	Content     string      `json:"content"`
	Phone       string      `json:"phone"`
	Direction   string      `json:"direction"` // outbound = enviado pelo agente
	Status      string      `json:"status"`
	Type        string      `json:"type"`
	CreatedAt   string      `json:"created_at"`
	ContatoNome string      `json:"contact_name,omitempty"`
	Nome        string      `json:"name,omitempty"`
	PushName    string      `json:"push_name,omitempty"`
	SenderName  string      `json:"sender_name,omitempty"`
}

// DisplayName procura o nome do contato nas várias colunas possíveis do banco.
// Retorna vazio quando nenhuma vem preenchida.
func (r MessageRow) DisplayName() string {
	for _, name := range []string{r.ContatoNome, r.Nome, r.PushName, r.SenderName} {
		if name != "" {
			return name
		}
	}
	return ""
}

// ToMessage converte a linha do banco para o formato interno do monitor.
func (r MessageRow) ToMessage() Message {
	sender := SenderCustomer
	if r.Direction == "outbound" {
		sender = SenderAgent
	}

	status := r.Status
	if status == "" {
		status = StatusDelivered
	}
	msgType := r.Type
	if msgType == "" {
		msgType = TypeText
	}

	ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		ts = time.Now()
	}

	// Linha sem ID recebe um identificador derivado do conteúdo: a
	// reentrega do mesmo evento produz o mesmo ID e cai na deduplicação
	id := r.ID.String()
	if id == "" {
		h := fnv.New64a()
		fmt.Fprintf(h, "%s|%s|%s", r.Phone, r.CreatedAt, r.Content)
		id = fmt.Sprintf("row-%x", h.Sum64())
	}

	return Message{
		ID:           id,
		Text:         r.Content,
		Sender:       sender,
		Timestamp:    ts,
		CreatedAtRaw: r.CreatedAt,
		Status:       status,
		Type:         msgType,
	}
}
