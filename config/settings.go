package config

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Chave única onde as credenciais entram, espelhando o que o console web
// salvava no navegador.
const settingsKey = "autoforce_monitor_config"

// BackendSettings são as credenciais que o operador digita na tela de
// configurações.
type BackendSettings struct {
	BackendURL string `json:"backend_url"`
	BackendKey string `json:"backend_key"`
}

// SettingsStore persiste as credenciais localmente em sqlite, sobrevivendo a
// reinícios do serviço.
type SettingsStore struct {
	db *sql.DB
}

func OpenSettingsStore(path string) (*SettingsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir banco de configurações: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao criar tabela de configurações: %v", err)
	}

	return &SettingsStore{db: db}, nil
}

// Load retorna as credenciais salvas, ou nil quando não há nada (ou o que há
// não parseia). Esse estado leva o operador para a tela de configurações,
// não é erro.
func (s *SettingsStore) Load() (*BackendSettings, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", settingsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao ler configurações: %v", err)
	}

	var settings BackendSettings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return nil, nil
	}
	if settings.BackendURL == "" || settings.BackendKey == "" {
		return nil, nil
	}
	return &settings, nil
}

func (s *SettingsStore) Save(settings BackendSettings) error {
	value, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("erro ao serializar configurações: %v", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(value))
	if err != nil {
		return fmt.Errorf("erro ao salvar configurações: %v", err)
	}
	return nil
}

func (s *SettingsStore) Close() error {
	return s.db.Close()
}
