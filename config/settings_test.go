package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsStoreRoundTrip(t *testing.T) {
	store, err := OpenSettingsStore(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	defer store.Close()

	// Sem nada salvo: nil sem erro, a UI manda para as configurações
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, saved)

	settings := BackendSettings{
		BackendURL: "https://xyz.supabase.co",
		BackendKey: "sb_publishable_abc123",
	}
	require.NoError(t, store.Save(settings))

	saved, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, settings, *saved)

	// Salvar de novo sobrescreve
	settings.BackendKey = "sb_publishable_def456"
	require.NoError(t, store.Save(settings))
	saved, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sb_publishable_def456", saved.BackendKey)
}

func TestSettingsStoreIgnoresIncomplete(t *testing.T) {
	store, err := OpenSettingsStore(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(BackendSettings{BackendURL: "https://xyz.supabase.co"}))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, saved, "par incompleto conta como não configurado")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.ListenAddr)
	assert.Equal(t, 500, cfg.HistoryLimit)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "monitor.db", cfg.SettingsDB)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MONITOR_LISTEN_ADDR", ":9090")
	t.Setenv("MONITOR_HISTORY_LIMIT", "1000")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 1000, cfg.HistoryLimit)
}
