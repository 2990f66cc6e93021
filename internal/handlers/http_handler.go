package handlers

import (
	"encoding/json"
	"net/http"

	"whatsapp-monitor/config"
	"whatsapp-monitor/internal/models"
	"whatsapp-monitor/internal/services"
	"whatsapp-monitor/internal/utils"

	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	console *services.Console
}

func NewHTTPHandler(console *services.Console) *HTTPHandler {
	return &HTTPHandler{console: console}
}

// monitor devolve o monitor ativo ou responde 409 quando o console ainda não
// foi configurado.
func (h *HTTPHandler) monitor(w http.ResponseWriter) *services.Monitor {
	monitor := h.console.Monitor()
	if monitor == nil {
		models.RespondWithJSON(w, http.StatusConflict,
			models.NewErrorResponse("Backend não configurado. Salve as credenciais em /settings"))
		return nil
	}
	return monitor
}

// @Summary List conversations
// @Description Lista as conversas reconciliadas, ordenadas pela última mensagem
// @Tags conversations
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /conversations [get]
func (h *HTTPHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	monitor := h.monitor(w)
	if monitor == nil {
		return
	}

	data := map[string]interface{}{
		"conversations":  monitor.Conversations(),
		"active_id":      monitor.ActiveConversationID(),
		"history_loaded": monitor.HistoryLoaded(),
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversas carregadas", data))
}

// @Summary Get a conversation thread
// @Description Retorna a thread completa de uma conversa (id = telefone normalizado)
// @Tags conversations
// @Produce json
// @Param id path string true "ID da conversa"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /conversations/{id} [get]
func (h *HTTPHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	monitor := h.monitor(w)
	if monitor == nil {
		return
	}

	id := mux.Vars(r)["id"]
	conv, ok := monitor.Conversation(id)
	if !ok {
		models.RespondWithJSON(w, http.StatusNotFound,
			models.NewErrorResponse("Conversa não encontrada"))
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversa carregada", conv))
}

// @Summary Select the open conversation
// @Description Marca a conversa como aberta e zera o contador de não-lidas
// @Tags conversations
// @Produce json
// @Param id path string true "ID da conversa"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /conversations/{id}/select [post]
func (h *HTTPHandler) SelectConversation(w http.ResponseWriter, r *http.Request) {
	monitor := h.monitor(w)
	if monitor == nil {
		return
	}

	id := mux.Vars(r)["id"]
	conv, err := monitor.SelectConversation(id)
	if err != nil {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse(err.Error()))
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversa selecionada", conv))
}

// @Summary Send a text message
// @Description Anexa a mensagem otimista na conversa e insere a linha de saída no backend
// @Tags messages
// @Accept json
// @Produce json
// @Param request body models.SendMessageRequest true "Message details"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 502 {object} models.APIResponse
// @Router /send-message [post]
func (h *HTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	monitor := h.monitor(w)
	if monitor == nil {
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("Erro ao decodificar requisição /send-message: %v", err)
		models.RespondWithJSON(w, http.StatusBadRequest,
			models.NewErrorResponse("Erro ao decodificar requisição: "+err.Error()))
		return
	}
	if req.ConversationID == "" || req.Message == "" {
		models.RespondWithJSON(w, http.StatusBadRequest,
			models.NewErrorResponse("conversation_id e message são obrigatórios"))
		return
	}

	optimistic, err := monitor.SendMessage(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		// A mensagem otimista já está na thread; o operador precisa saber
		// que a escrita durável falhou
		models.RespondWithJSON(w, http.StatusBadGateway, models.NewErrorResponse(err.Error()))
		return
	}

	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Mensagem enviada com sucesso", optimistic))
}

// @Summary List CRM contacts
// @Description Lista os contatos do warm-up do cache, por criação decrescente
// @Tags contacts
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /contacts [get]
func (h *HTTPHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	cache := h.console.Cache()
	if cache == nil {
		models.RespondWithJSON(w, http.StatusConflict,
			models.NewErrorResponse("Backend não configurado. Salve as credenciais em /settings"))
		return
	}
	models.RespondWithJSON(w, http.StatusOK,
		models.NewSuccessResponse("Contatos carregados", cache.All()))
}

// @Summary Look up a CRM contact by phone
// @Description Resolve o contato de um telefone via cache; não cadastrado é resultado normal
// @Tags contacts
// @Produce json
// @Param phone query string true "Telefone (qualquer formato)"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /contacts/lookup [get]
func (h *HTTPHandler) LookupContact(w http.ResponseWriter, r *http.Request) {
	cache := h.console.Cache()
	if cache == nil {
		models.RespondWithJSON(w, http.StatusConflict,
			models.NewErrorResponse("Backend não configurado. Salve as credenciais em /settings"))
		return
	}

	phone := r.URL.Query().Get("phone")
	if phone == "" {
		models.RespondWithJSON(w, http.StatusBadRequest,
			models.NewErrorResponse("Parâmetro phone é obrigatório"))
		return
	}

	contact, _ := cache.Lookup(r.Context(), phone)
	if contact == nil {
		models.RespondWithJSON(w, http.StatusNotFound,
			models.NewErrorResponse("Contato não cadastrado no CRM"))
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Contato encontrado", contact))
}

// @Summary CRM kanban board
// @Description Agrupa os leads nas colunas da esteira de qualificação
// @Tags crm
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /crm/board [get]
func (h *HTTPHandler) GetCRMBoard(w http.ResponseWriter, r *http.Request) {
	cache := h.console.Cache()
	if cache == nil {
		models.RespondWithJSON(w, http.StatusConflict,
			models.NewErrorResponse("Backend não configurado. Salve as credenciais em /settings"))
		return
	}
	models.RespondWithJSON(w, http.StatusOK,
		models.NewSuccessResponse("Esteira montada", services.BuildBoard(cache.All())))
}

// @Summary Dashboard aggregates
// @Description KPIs do painel: leads, conversas, não-lidas, MQLs, segmentos
// @Tags crm
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /dashboard [get]
func (h *HTTPHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	monitor := h.monitor(w)
	if monitor == nil {
		return
	}
	cache := h.console.Cache()

	stats := services.BuildDashboard(cache.All(), monitor.Conversations())
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Painel calculado", stats))
}

// @Summary Connection status
// @Description Flags de configuração e conexão que a UI consulta
// @Tags status
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /status [get]
func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	configured, connected := h.console.Status()
	data := map[string]interface{}{
		"configured": configured,
		"connected":  connected,
	}
	if monitor := h.console.Monitor(); monitor != nil {
		data["history_loaded"] = monitor.HistoryLoaded()
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Status do console", data))
}

// @Summary Get saved settings
// @Description Retorna a URL salva e a chave mascarada
// @Tags settings
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /settings [get]
func (h *HTTPHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	saved, err := h.console.SavedSettings()
	if err != nil {
		utils.LogError("Erro ao ler configurações: %v", err)
		models.RespondWithJSON(w, http.StatusInternalServerError,
			models.NewErrorResponse("Erro ao ler configurações"))
		return
	}
	if saved == nil {
		models.RespondWithJSON(w, http.StatusOK,
			models.NewSuccessResponse("Nenhuma configuração salva", nil))
		return
	}

	data := map[string]string{
		"backend_url": saved.BackendURL,
		"backend_key": maskKey(saved.BackendKey),
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Configurações salvas", data))
}

// @Summary Save settings and reconnect
// @Description Persiste as credenciais, derruba a assinatura antiga e reconecta
// @Tags settings
// @Accept json
// @Produce json
// @Param request body models.SettingsRequest true "Backend credentials"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /settings [put]
func (h *HTTPHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req models.SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("Erro ao decodificar requisição /settings: %v", err)
		models.RespondWithJSON(w, http.StatusBadRequest,
			models.NewErrorResponse("Erro ao decodificar requisição: "+err.Error()))
		return
	}

	err := h.console.SaveSettings(r.Context(), config.BackendSettings{
		BackendURL: req.BackendURL,
		BackendKey: req.BackendKey,
	})
	if err != nil {
		utils.LogError("Erro ao salvar configurações: %v", err)
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse(err.Error()))
		return
	}

	models.RespondWithJSON(w, http.StatusOK,
		models.NewSuccessResponse("Configurações salvas, reconectando", nil))
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
