package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatsapp-monitor/internal/models"
	"whatsapp-monitor/internal/utils"
)

// Client fala com o backend Supabase: REST (PostgREST) para histórico,
// contatos e envio, e websocket para o feed realtime. É construído pelo
// composition root e trocado inteiro quando o operador salva novas
// credenciais, nada de singleton reinicializável.
type Client struct {
	baseURL      string
	apiKey       string
	historyLimit int
	httpClient   *http.Client
}

func NewClient(baseURL, apiKey string, historyLimit int) *Client {
	if historyLimit <= 0 {
		historyLimit = 500
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		historyLimit: historyLimit,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
	}
}

// FetchHistory busca o lote de mensagens em ordem cronológica crescente,
// limitado ao teto configurado.
func (c *Client) FetchHistory(ctx context.Context) ([]models.MessageRow, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/messages?select=*&order=created_at.asc&limit=%d",
		c.baseURL, c.historyLimit)

	var rows []models.MessageRow
	if err := c.getJSON(ctx, endpoint, &rows); err != nil {
		return nil, fmt.Errorf("erro ao buscar histórico: %v", err)
	}
	return rows, nil
}

// FetchContactByPhone busca o registro de CRM com match parcial no telefone,
// o formato no banco varia (+55, com ou sem nono dígito), então o filtro é
// "contém os dígitos".
func (c *Client) FetchContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	digits := utils.NormalizePhone(phone)
	if digits == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/rest/v1/contacts?select=*&phone=ilike.%s&limit=1",
		c.baseURL, url.QueryEscape("*"+digits+"*"))

	var contacts []models.Contact
	if err := c.getJSON(ctx, endpoint, &contacts); err != nil {
		return nil, fmt.Errorf("erro ao buscar contato: %v", err)
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return &contacts[0], nil
}

// FetchAllContacts lista os contatos por data de criação decrescente, para o
// warm-up do cache e para as visões agregadas.
func (c *Client) FetchAllContacts(ctx context.Context) ([]models.Contact, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/contacts?select=*&order=created_at.desc", c.baseURL)

	var contacts []models.Contact
	if err := c.getJSON(ctx, endpoint, &contacts); err != nil {
		return nil, fmt.Errorf("erro ao listar contatos: %v", err)
	}
	return contacts, nil
}

// SendMessage insere a linha de saída que o relay externo consome.
func (c *Client) SendMessage(ctx context.Context, text, phone string) error {
	payload := map[string]interface{}{
		"content":    text,
		"phone":      phone,
		"direction":  "outbound",
		"type":       "text",
		"status":     "sent",
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("erro ao montar mensagem: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/rest/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("erro ao montar requisição: %v", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("erro ao inserir mensagem: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend recusou o insert (%d): %s", resp.StatusCode, string(data))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
