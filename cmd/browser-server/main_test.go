package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/commonplayer/pkg/config"
	"github.com/entrhq/commonplayer/pkg/driver/pwdriver"
	"github.com/entrhq/commonplayer/pkg/driver/roddriver"
	"github.com/entrhq/commonplayer/pkg/logging"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commonplayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socket_path: /from/file.sock\nbackend: rod\nheadless: true\n"), 0600))

	env := func(key string) (string, bool) {
		if key == config.EnvSocket {
			return "/from/env.sock", true
		}
		return "", false
	}

	t.Run("env beats file", func(t *testing.T) {
		cfg, err := loadConfig(parseFlags([]string{"-config", path}), env)
		require.NoError(t, err)
		assert.Equal(t, "/from/env.sock", cfg.SocketPath)
		assert.Equal(t, config.BackendRod, cfg.Backend)
		assert.True(t, cfg.Headless)
	})

	t.Run("flags beat env", func(t *testing.T) {
		cfg, err := loadConfig(parseFlags([]string{
			"-config", path,
			"-socket", "/from/flag.sock",
			"-backend", "Playwright",
			"-headless=false",
			"-extension", "/ext/a",
			"-extension", "/ext/b",
		}), env)
		require.NoError(t, err)
		assert.Equal(t, "/from/flag.sock", cfg.SocketPath)
		assert.Equal(t, config.BackendPlaywright, cfg.Backend)
		assert.False(t, cfg.Headless)
		assert.Equal(t, []string{"/ext/a", "/ext/b"}, cfg.Extensions)
	})

	t.Run("unset flags leave file values", func(t *testing.T) {
		cfg, err := loadConfig(parseFlags([]string{"-config", path}), noEnv)
		require.NoError(t, err)
		assert.Equal(t, "/from/file.sock", cfg.SocketPath)
		assert.True(t, cfg.Headless)
	})
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(parseFlags([]string{"-backend", "selenium"}), noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewFactory_SelectsBackend(t *testing.T) {
	cfg := config.Default()
	f, err := newFactory(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &pwdriver.Factory{}, f)

	cfg.Backend = config.BackendRod
	f, err = newFactory(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &roddriver.Factory{}, f)
}
