package models

// Contact é o registro de CRM de um lead, lido da tabela contacts.
// As colunas de enriquecimento vêm do fluxo de qualificação (n8n + IA)
// e podem estar todas vazias para contatos recém-criados.
type Contact struct {
	ID              int64  `json:"id"`
	CreatedAt       string `json:"created_at"`
	Phone           string `json:"phone"`
	Name            string `json:"name"`
	Segmento        string `json:"segmento,omitempty"`
	Status          string `json:"status,omitempty"` // Ex: Novo, Em Atendimento, Proposta, Ganho
	Temperatura     string `json:"temperatura,omitempty"`
	Empresa         string `json:"empresa,omitempty"`
	Cargo           string `json:"cargo,omitempty"`
	PipedriveID     int64  `json:"pipedrive_id,omitempty"`
	ResumoIA        string `json:"resumo_ia,omitempty"`
	UltimaInteracao string `json:"ultima_interacao,omitempty"`
}
