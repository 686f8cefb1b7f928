package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestGetConfigDefaults(t *testing.T) {
	config, err := getConfig("")

	require.NoError(t, err)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "cache.db", config.DB)
}

func TestGetConfigFile(t *testing.T) {
	filename := writeConfig(t, `
origin: https://recipes.example.com
version: recipe-randomizer-v2
installRetry: 5s
manifest:
  - index.html
  - offline.html
rules:
  - prefix: /icons/
    default: max-age=86400
`)

	config, err := getConfig(filename)

	require.NoError(t, err)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "https://recipes.example.com", config.Origin)
	assert.Equal(t, "recipe-randomizer-v2", config.Version)
	assert.Equal(t, 5*time.Second, config.InstallRetry)
	assert.Equal(t, []string{"index.html", "offline.html"}, config.Manifest)
	require.Len(t, config.Rules, 1)
	assert.Equal(t, "/icons/", config.Rules[0].Prefix)
	assert.Equal(t, "max-age=86400", config.Rules[0].Default)
}

func TestGetConfigEnvOverridesFile(t *testing.T) {
	filename := writeConfig(t, "port: 9000\nversion: from-file\n")
	t.Setenv("SHELL_CACHE_VERSION", "from-env")
	t.Setenv("SHELL_CACHE_MANIFEST", "a.html,b.css")

	config, err := getConfig(filename)

	require.NoError(t, err)
	assert.Equal(t, 9000, config.Port)
	assert.Equal(t, "from-env", config.Version)
	assert.Equal(t, []string{"a.html", "b.css"}, config.Manifest)
}

func TestGetConfigMissingFile(t *testing.T) {
	_, err := getConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
