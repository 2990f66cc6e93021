package models

import "time"

const (
	ConversationActive   = "active"
	ConversationWaiting  = "waiting"
	ConversationFinished = "finished"
)

const PlatformWhatsApp = "whatsapp"

// Conversation é a thread de mensagens de um contato. O ID é o telefone
// normalizado (só dígitos); o telefone cru fica em ContactPhone para
// exibição e para o insert de saída.
type Conversation struct {
	ID              string    `json:"id"`
	ContactName     string    `json:"contact_name"`
	ContactPhone    string    `json:"contact_phone"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	Status          string    `json:"status"`
	Platform        string    `json:"platform"`
	Tags            []string  `json:"tags"`
	Messages        []Message `json:"messages"`
}

// ConversationSummary é a projeção da lista lateral, sem o corpo da thread.
type ConversationSummary struct {
	ID              string    `json:"id"`
	ContactName     string    `json:"contact_name"`
	ContactPhone    string    `json:"contact_phone"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	Status          string    `json:"status"`
	Platform        string    `json:"platform"`
	Tags            []string  `json:"tags"`
	MessageCount    int       `json:"message_count"`
}

func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:              c.ID,
		ContactName:     c.ContactName,
		ContactPhone:    c.ContactPhone,
		LastMessage:     c.LastMessage,
		LastMessageTime: c.LastMessageTime,
		UnreadCount:     c.UnreadCount,
		Status:          c.Status,
		Platform:        c.Platform,
		Tags:            c.Tags,
		MessageCount:    len(c.Messages),
	}
}
