package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakshamDixitSBH/docrag/internal/config"
)

func TestConfigCmd_Path(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, dir, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath(), strings.TrimSpace(out))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), os.Getenv("XDG_CONFIG_HOME")))
}

func TestConfigCmd_Init(t *testing.T) {
	// Given: no user config
	dir := isolate(t)

	// When
	out, err := run(t, dir, "config", "init")

	// Then: the default config is written
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")
	assert.FileExists(t, config.GetUserConfigPath())

	// And: a second init leaves it alone
	out, err = run(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	// And: --force backs it up
	out, err = run(t, dir, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigCmd_InitProject(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, dir, "config", "init", "--project")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, config.ProjectFile))
}

func TestConfigCmd_ShowMergesProjectConfig(t *testing.T) {
	// Given: a project config overriding the default k
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFile), []byte("search:\n  default_k: 9\n"), 0o644))

	// When
	out, err := run(t, dir, "config", "show", "--json")

	// Then
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9, cfg.Search.DefaultK)
	assert.Equal(t, "file", cfg.Index.Backend)
}

func TestConfigCmd_ShowYAML(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, dir, "config", "show", "--source", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration source: defaults")
	assert.Contains(t, out, "target_tokens: 180")

	_, err = run(t, dir, "config", "show", "--source", "bogus")
	assert.Error(t, err)
}
