package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opereon/opereon-sub000/internal/config"
)

func TestDefaultHasSaneFallbacks(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 16, cfg.SSHCacheCapacity)
	assert.Equal(t, 2*time.Second, cfg.SSHConnectTimeout)
	assert.Equal(t, "rsync", cfg.RsyncBin)
	assert.Equal(t, "ssh", cfg.SSHBin)
	assert.NotEmpty(t, cfg.SocketDir)
	assert.NotEmpty(t, cfg.StagingRoot)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operc.yaml")
	body := "ssh_cache_capacity: 4\nrsync_bin: /usr/bin/rsync\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.SSHCacheCapacity)
	assert.Equal(t, "/usr/bin/rsync", cfg.RsyncBin)
	assert.Equal(t, "ssh", cfg.SSHBin, "unset fields keep the Default() value")
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operc.toml")
	body := "ssh_cache_capacity = 8\nremote_shell = \"/bin/zsh\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.SSHCacheCapacity)
	assert.Equal(t, "/bin/zsh", cfg.RemoteShell)
}

func TestLoadExpandsEnvVarPlaceholder(t *testing.T) {
	t.Setenv("OP_RSYNC_BIN", "/opt/rsync")
	dir := t.TempDir()
	path := filepath.Join(dir, "operc.yaml")
	body := "rsync_bin: \"${OP_RSYNC_BIN}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/rsync", cfg.RsyncBin)
}

func TestLoadExpandsEnvVarDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("OP_MISSING_VAR")
	dir := t.TempDir()
	path := filepath.Join(dir, "operc.yaml")
	body := "remote_shell: \"${OP_MISSING_VAR:-/bin/bash}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", cfg.RemoteShell)
}

func TestLoadRejectsUnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operc.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
