package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsApplied(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)
	cfg := m.Get()

	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connection)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.TestExecution)
	assert.Equal(t, time.Duration(0), cfg.Timeouts.Overall)
	assert.Equal(t, 0.0, cfg.Timeouts.PaceLimit)
	assert.Equal(t, "console", cfg.Output.Format)
	assert.True(t, cfg.Experimental.UseSDKErrorDetection)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timeouts:
  connection: 3s
  test_execution: 7s
  pace_limit: 2.5
output:
  format: json
categories:
  enabled:
    - lifecycle
`), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	cfg := m.Get()

	assert.Equal(t, 3*time.Second, cfg.Timeouts.Connection)
	assert.Equal(t, 7*time.Second, cfg.Timeouts.TestExecution)
	assert.Equal(t, 2.5, cfg.Timeouts.PaceLimit)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, []string{"lifecycle"}, cfg.EnabledCategories())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MCP_TESTER_OUTPUT_FORMAT", "junit")

	m, err := NewManager("")
	require.NoError(t, err)
	assert.Equal(t, "junit", m.Get().Output.Format)
}

func TestEnabledCategoriesResolution(t *testing.T) {
	t.Run("no filters means all", func(t *testing.T) {
		cfg := &Config{}
		assert.Nil(t, cfg.EnabledCategories())
	})

	t.Run("disable-only enumerates the rest", func(t *testing.T) {
		cfg := &Config{Categories: CategoryConfig{Disabled: []string{"utilities"}}}
		assert.Equal(t,
			[]string{"base-protocol", "lifecycle", "server-features"},
			cfg.EnabledCategories())
	})

	t.Run("disabled trims enabled", func(t *testing.T) {
		cfg := &Config{Categories: CategoryConfig{
			Enabled:  []string{"Lifecycle", "server-features"},
			Disabled: []string{"SERVER-FEATURES"},
		}}
		assert.Equal(t, []string{"lifecycle"}, cfg.EnabledCategories())
	})
}

func TestLoadServerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mcpServers": {
			"local": {"command": "./server", "args": ["--stdio"]},
			"remote": {"url": "https://example.com/mcp"}
		}
	}`), 0o644))

	sc, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "remote"}, sc.Names())

	def, err := sc.Select("local")
	require.NoError(t, err)
	assert.Equal(t, "./server", def.Command)
	assert.Equal(t, "stdio", def.TransportType())

	def, err = sc.Select("remote")
	require.NoError(t, err)
	assert.Equal(t, "http", def.TransportType())
}

func TestSelectAmbiguityAndMisses(t *testing.T) {
	sc := &ServerConfig{Servers: map[string]ServerDefinition{
		"a": {Command: "a"},
		"b": {Command: "b"},
	}}

	_, err := sc.Select("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pick one")

	_, err = sc.Select("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available")

	single := &ServerConfig{Servers: map[string]ServerDefinition{"only": {URL: "https://x"}}}
	def, err := single.Select("")
	require.NoError(t, err)
	assert.Equal(t, "https://x", def.URL)
}

func TestServerConfigSchemaValidation(t *testing.T) {
	t.Run("rejects malformed JSON", func(t *testing.T) {
		err := ValidateServerConfig([]byte(`{"mcpServers":`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})

	t.Run("rejects empty registry", func(t *testing.T) {
		assert.Error(t, ValidateServerConfig([]byte(`{"mcpServers": {}}`)))
	})

	t.Run("rejects definition without command or url", func(t *testing.T) {
		assert.Error(t, ValidateServerConfig([]byte(`{"mcpServers": {"x": {"args": []}}}`)))
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		assert.Error(t, ValidateServerConfig([]byte(
			`{"mcpServers": {"x": {"command": "c", "transport": "carrier-pigeon"}}}`)))
	})

	t.Run("accepts a valid registry", func(t *testing.T) {
		assert.NoError(t, ValidateServerConfig([]byte(
			`{"mcpServers": {"x": {"command": "c", "transport": "stdio"}}}`)))
	})
}

func TestTestFileSchemaValidation(t *testing.T) {
	valid := map[string]any{
		"tests": []any{
			map[string]any{"name": "t1", "tool": "echo", "arguments": map[string]any{"n": 1}},
		},
	}
	assert.NoError(t, ValidateTestFile(valid))

	missingTool := map[string]any{
		"tests": []any{map[string]any{"name": "t1"}},
	}
	assert.Error(t, ValidateTestFile(missingTool))
}

func TestSchemaJSON(t *testing.T) {
	s, err := SchemaJSON("server-config")
	require.NoError(t, err)
	assert.Contains(t, s, "mcpServers")

	_, err = SchemaJSON("nope")
	assert.Error(t, err)
}
