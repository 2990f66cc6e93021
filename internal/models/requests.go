package models

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" example:"5511999999999" swagger:"required" description:"ID da conversa (telefone normalizado)"`
	Message        string `json:"message" example:"Olá, como vai?" swagger:"required" description:"Texto da mensagem"`
}

type SettingsRequest struct {
	BackendURL string `json:"backend_url" example:"https://xyz.supabase.co" swagger:"required" description:"URL do projeto Supabase"`
	BackendKey string `json:"backend_key" swagger:"required" description:"Chave pública (anon) do projeto"`
}
