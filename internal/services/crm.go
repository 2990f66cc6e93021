package services

import (
	"strings"

	"whatsapp-monitor/internal/models"
)

// Colunas da esteira de qualificação do kanban.
const (
	ColumnNovo    = "novo"
	ColumnTriagem = "triagem"
	ColumnMQL     = "mql"
	ColumnFrio    = "frio"
)

var (
	frioKeywords = []string{
		"desqualificado", "perdido", "perdi", "arquivado", "cancelado", "sem interesse",
	}
	mqlKeywords = []string{
		"qualificado", "agendado", "reunião", "proposta", "ganho", "ganha", "fechamento",
	}
	triagemKeywords = []string{
		"atendimento", "andamento", "validando", "contato", "respondeu",
	}
)

// ClassifyLead mapeia o status livre do CRM para uma coluna do kanban.
// "Frio" é testado antes de "MQL" para "desqualificado" não cair como
// qualificado.
func ClassifyLead(contact models.Contact) string {
	status := strings.ToLower(contact.Status)
	if status == "" {
		return ColumnNovo
	}
	for _, kw := range frioKeywords {
		if strings.Contains(status, kw) {
			return ColumnFrio
		}
	}
	for _, kw := range mqlKeywords {
		if strings.Contains(status, kw) {
			return ColumnMQL
		}
	}
	for _, kw := range triagemKeywords {
		if strings.Contains(status, kw) {
			return ColumnTriagem
		}
	}
	return ColumnNovo
}

// BuildBoard agrupa os contatos nas colunas da esteira.
func BuildBoard(contacts []models.Contact) map[string][]models.Contact {
	board := map[string][]models.Contact{
		ColumnNovo:    {},
		ColumnTriagem: {},
		ColumnMQL:     {},
		ColumnFrio:    {},
	}
	for _, contact := range contacts {
		column := ClassifyLead(contact)
		board[column] = append(board[column], contact)
	}
	return board
}

// DashboardStats são os agregados exibidos no painel.
type DashboardStats struct {
	TotalLeads         int            `json:"total_leads"`
	TotalConversations int            `json:"total_conversations"`
	UnreadTotal        int            `json:"unread_total"`
	MQLCount           int            `json:"mql_count"`
	ConversionRate     float64        `json:"conversion_rate"`
	PorSegmento        map[string]int `json:"por_segmento"`
	PorTemperatura     map[string]int `json:"por_temperatura"`
}

// BuildDashboard calcula os KPIs a partir do cache de contatos e das
// projeções de conversa.
func BuildDashboard(contacts []models.Contact, conversations []models.ConversationSummary) DashboardStats {
	stats := DashboardStats{
		TotalLeads:         len(contacts),
		TotalConversations: len(conversations),
		PorSegmento:        make(map[string]int),
		PorTemperatura:     make(map[string]int),
	}

	for _, conv := range conversations {
		stats.UnreadTotal += conv.UnreadCount
	}

	for _, contact := range contacts {
		segmento := contact.Segmento
		if segmento == "" {
			segmento = "Não Identificado"
		}
		stats.PorSegmento[segmento]++

		temperatura := contact.Temperatura
		if temperatura == "" {
			temperatura = "N/A"
		}
		stats.PorTemperatura[temperatura]++

		if ClassifyLead(contact) == ColumnMQL {
			stats.MQLCount++
		}
	}

	if stats.TotalLeads > 0 {
		stats.ConversionRate = float64(stats.MQLCount) / float64(stats.TotalLeads) * 100
	}
	return stats
}
