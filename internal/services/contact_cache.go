package services

import (
	"context"
	"sync"
	"time"

	"whatsapp-monitor/internal/models"
	"whatsapp-monitor/internal/utils"
)

const contactFetchTimeout = 15 * time.Second

// ContactCache memoiza os registros de CRM por telefone normalizado. O warm-up
// em lote cobre a maioria dos lookups; o fetch individual só roda em miss.
// Entradas nunca expiram dentro da sessão: contato desatualizado é aceitável,
// round-trip repetido não.
type ContactCache struct {
	mu      sync.RWMutex
	source  DataSource
	byPhone map[string]*models.Contact
	missing map[string]bool
	all     []models.Contact
	warmed  bool
}

func NewContactCache(source DataSource) *ContactCache {
	return &ContactCache{
		source:  source,
		byPhone: make(map[string]*models.Contact),
		missing: make(map[string]bool),
	}
}

// WarmUp carrega a lista completa de contatos de uma vez. Falha aqui não é
// fatal: o cache segue vazio e os lookups caem no fetch individual.
func (c *ContactCache) WarmUp(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, contactFetchTimeout)
	defer cancel()

	contacts, err := c.source.FetchAllContacts(fetchCtx)
	if err != nil {
		utils.LogWarning("Erro ao pré-carregar contatos: %v", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = contacts
	for i := range contacts {
		key := utils.NormalizePhone(contacts[i].Phone)
		if key == "" {
			continue
		}
		c.byPhone[key] = &contacts[i]
	}
	c.warmed = true
	utils.LogInfo("Cache de contatos aquecido com %d registros", len(contacts))
	return nil
}

// All devolve a lista do warm-up (ordem de criação decrescente, como veio do
// backend).
func (c *ContactCache) All() []models.Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Contact(nil), c.all...)
}

// Lookup resolve o contato de um telefone. Não encontrado é resultado normal
// (nil, nil); erro de fetch é logado e tratado como não encontrado, o drawer
// mostra "contato não cadastrado" do mesmo jeito.
func (c *ContactCache) Lookup(ctx context.Context, phone string) (*models.Contact, error) {
	key := utils.NormalizePhone(phone)
	if key == "" {
		return nil, nil
	}

	c.mu.RLock()
	if contact, ok := c.byPhone[key]; ok {
		c.mu.RUnlock()
		return contact, nil
	}
	if c.missing[key] {
		c.mu.RUnlock()
		return nil, nil
	}
	c.mu.RUnlock()

	fetchCtx, cancel := context.WithTimeout(ctx, contactFetchTimeout)
	defer cancel()

	contact, err := c.source.FetchContactByPhone(fetchCtx, key)
	if err != nil {
		utils.LogWarning("Erro ao buscar contato %s, tratando como não cadastrado: %v", key, err)
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if contact == nil {
		c.missing[key] = true
		return nil, nil
	}
	c.byPhone[key] = contact
	return contact, nil
}
