package services

import (
	"context"
	"fmt"
	"sync"

	"whatsapp-monitor/config"
	"whatsapp-monitor/internal/utils"
)

// SourceFactory constrói o DataSource para um par URL/chave. Injetada pelo
// composition root para o pacote não conhecer a implementação concreta.
type SourceFactory func(backendURL, backendKey string) DataSource

// Console coordena o ciclo de vida do monitor: auto-conexão na subida,
// reconfiguração quando o operador salva credenciais novas (derrubando a
// assinatura antiga antes de abrir outra) e os flags de status que a UI
// consulta.
type Console struct {
	mu        sync.Mutex
	settings  *config.SettingsStore
	newSource SourceFactory
	listener  func(ChangeEvent)

	monitor    *Monitor
	cache      *ContactCache
	configured bool
	connected  bool
}

func NewConsole(settings *config.SettingsStore, newSource SourceFactory, listener func(ChangeEvent)) *Console {
	return &Console{
		settings:  settings,
		newSource: newSource,
		listener:  listener,
	}
}

// AutoConnect tenta subir com as credenciais persistidas, caindo para as
// credenciais padrão da configuração. Sem nenhuma das duas o console fica no
// estado "não configurado" e a UI manda o operador para as configurações.
func (c *Console) AutoConnect(ctx context.Context, fallback config.BackendSettings) {
	saved, err := c.settings.Load()
	if err != nil {
		utils.LogWarning("Erro ao ler credenciais salvas: %v", err)
	}
	if saved == nil {
		if fallback.BackendURL == "" || fallback.BackendKey == "" {
			utils.LogInfo("Nenhuma credencial configurada, aguardando o operador")
			return
		}
		saved = &fallback
	}

	if err := c.configure(ctx, *saved); err != nil {
		utils.LogError("Erro na auto-conexão: %v", err)
	}
}

// SaveSettings persiste as credenciais e reconfigura o console com elas.
func (c *Console) SaveSettings(ctx context.Context, settings config.BackendSettings) error {
	if settings.BackendURL == "" || settings.BackendKey == "" {
		return fmt.Errorf("url e chave do backend são obrigatórias")
	}
	if err := c.settings.Save(settings); err != nil {
		return err
	}
	return c.configure(ctx, settings)
}

// configure troca o backend ativo. A assinatura anterior é encerrada antes da
// nova nascer, senão a antiga seguiria entregando eventos duplicados.
func (c *Console) configure(ctx context.Context, settings config.BackendSettings) error {
	c.mu.Lock()
	old := c.monitor

	source := c.newSource(settings.BackendURL, settings.BackendKey)
	monitor := NewMonitor(source)
	monitor.SetChangeListener(c.listener)
	cache := NewContactCache(source)

	c.monitor = monitor
	c.cache = cache
	c.configured = true
	c.connected = false
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	// O request PUT que disparou a reconfiguração termina (e cancela o
	// contexto dele) antes da carga acabar; a vida do monitor não pode
	// ficar presa a ele. Os timeouts por fetch seguem valendo.
	startCtx := context.WithoutCancel(ctx)

	go func() {
		if err := monitor.Start(startCtx); err != nil {
			utils.LogError("Erro ao conectar no backend: %v", err)
			return
		}
		c.mu.Lock()
		// A reconfiguração pode ter trocado o monitor enquanto este subia
		if c.monitor == monitor {
			c.connected = true
		}
		c.mu.Unlock()

		cache.WarmUp(startCtx)
	}()

	return nil
}

// Monitor devolve o monitor ativo (nil quando não configurado).
func (c *Console) Monitor() *Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor
}

// Cache devolve o cache de contatos ativo (nil quando não configurado).
func (c *Console) Cache() *ContactCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// Status reporta os flags que a UI usa para decidir entre settings, spinner e
// chat.
func (c *Console) Status() (configured, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured, c.connected
}

// SavedSettings expõe as credenciais persistidas para a tela de
// configurações (a chave é mascarada no handler).
func (c *Console) SavedSettings() (*config.BackendSettings, error) {
	return c.settings.Load()
}

// Shutdown encerra a assinatura ativa no desligamento do processo.
func (c *Console) Shutdown() {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
}
