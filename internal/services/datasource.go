package services

import (
	"context"

	"whatsapp-monitor/internal/models"
)

// DataSource abstrai o backend hospedado (histórico, contatos, envio e feed
// de mudanças). A implementação real fica em internal/supabase; os testes
// usam um fake.
type DataSource interface {
	// FetchHistory retorna o lote de mensagens em ordem cronológica
	// crescente, limitado pelo backend.
	FetchHistory(ctx context.Context) ([]models.MessageRow, error)

	// FetchContactByPhone busca o registro de CRM pelo telefone.
	// Contato inexistente retorna (nil, nil), não é erro.
	FetchContactByPhone(ctx context.Context, phone string) (*models.Contact, error)

	// FetchAllContacts lista os contatos por data de criação decrescente.
	FetchAllContacts(ctx context.Context) ([]models.Contact, error)

	// SendMessage insere a mensagem de saída no banco. Falha propaga
	// para o chamador, sem retry silencioso.
	SendMessage(ctx context.Context, text, phone string) error

	// Subscribe liga o feed realtime. A entrega é at-least-once e sem
	// ordem garantida entre inserts e updates; quem consome precisa ser
	// idempotente.
	Subscribe(onInsert, onUpdate func(models.MessageRow)) (Subscription, error)
}

// Subscription é o handle do feed realtime. Close precisa ser chamado antes
// de abrir uma nova assinatura (troca de credenciais) para não vazar eventos
// duplicados.
type Subscription interface {
	Close() error
}
