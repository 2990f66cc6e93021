package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ListenAddr   string `koanf:"listen_addr"`
	HistoryLimit int    `koanf:"history_limit"`
	LogLevel     string `koanf:"log_level"`
	SettingsDB   string `koanf:"settings_db"`

	// Credenciais padrão do backend; usadas só quando o operador ainda não
	// salvou nada na tela de configurações.
	Backend struct {
		URL string `koanf:"url"`
		Key string `koanf:"key"`
	} `koanf:"backend"`
}

// LoadConfig monta a configuração: defaults, depois arquivo TOML (se houver),
// depois variáveis de ambiente com prefixo MONITOR_.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"listen_addr":   ":8081",
		"history_limit": 500,
		"log_level":     "info",
		"settings_db":   "monitor.db",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("erro ao carregar configuração padrão: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("erro ao carregar configuração: %w", err)
		}
	} else {
		for _, path := range []string{"./monitor.toml", "$HOME/.monitor.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// MONITOR_LISTEN_ADDR -> listen_addr; aninhamento usa underscore duplo
	// (MONITOR_BACKEND__URL -> backend.url)
	if err := k.Load(env.Provider("MONITOR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MONITOR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("erro ao ler variáveis de ambiente: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("erro ao interpretar configuração: %w", err)
	}

	return &config, nil
}
