package config

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/toolagent/internal/tools"
)

var credentialFiles = map[string]string{
	SecretBraveSearch:   "BraveSearchAPI.txt",
	SecretSystemMessage: "SystemMessage.txt",
	SecretNotion:        "Notion_API.txt",
	SecretGitHub:        "Github_API.txt",
}

// writeCredentials fills dir with the four credential files, overriding the
// content of any name present in content.
func writeCredentials(t *testing.T, dir string, content map[string]string) {
	t.Helper()
	for name, file := range credentialFiles {
		value, ok := content[name]
		if !ok {
			value = name + "-value\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(value), 0o600))
	}
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TOOLAGENT_CREDENTIALS_DIR", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)
	writeCredentials(t, home, nil)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434/v1", cfg.Provider.BaseURL)
	assert.Equal(t, "llama3.1:8b", cfg.Provider.Model)
	assert.InDelta(t, 0.1, cfg.Provider.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.Provider.MaxRetries)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, DefaultPrompt, cfg.Agent.Prompt)
	assert.Equal(t, 30*time.Second, cfg.Tools.ConnectTimeout)

	require.Len(t, cfg.Servers, 6)
	assert.Equal(t, home, cfg.Servers[0].DisplayName())
	assert.False(t, cfg.Servers[4].Enabled, "notion is defined but not loaded")
	assert.Len(t, cfg.AllowList, 10)
	assert.True(t, cfg.AllowedTools().Allows("brave_web_search"))

	assert.Equal(t, "brave_search-value", cfg.Secrets.BraveSearch)
	assert.Equal(t, "github-value", cfg.Secrets.GitHub)
}

func TestLoadConfigFile(t *testing.T) {
	home := isolate(t)
	writeCredentials(t, home, nil)

	path := filepath.Join(home, "toolagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  model: qwen3:8b
  temperature: 0.4
tools:
  connect_timeout: 5s
servers:
  - name: filesystem
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "~/projects"]
    enabled: true
  - name: brave-search
    command: npx
    args: ["-y", "@modelcontextprotocol/server-brave-search"]
    env:
      BRAVE_API_KEY: ${brave_search}
    enabled: true
allow_list: [write_file]
storage:
  db_path: ~/data/runs.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qwen3:8b", cfg.Provider.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Provider.BaseURL)
	assert.InDelta(t, 0.4, cfg.Provider.Temperature, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Tools.ConnectTimeout)

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, filepath.Join(home, "projects"), cfg.Servers[0].DisplayName())
	assert.Equal(t, map[string]string{"BRAVE_API_KEY": "${brave_search}"}, cfg.Servers[1].Env)
	assert.Equal(t, []string{"write_file"}, cfg.AllowList)
	assert.Equal(t, filepath.Join(home, "data", "runs.db"), cfg.Storage.DBPath)
}

func TestLoadEnvOverride(t *testing.T) {
	home := isolate(t)
	writeCredentials(t, home, nil)
	t.Setenv("TOOLAGENT_PROVIDER_MODEL", "llama3.2:3b")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:3b", cfg.Provider.Model)
}

func TestLoadExplicitMissingConfig(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyCredential(t *testing.T) {
	for name := range credentialFiles {
		t.Run(name, func(t *testing.T) {
			home := isolate(t)
			writeCredentials(t, home, map[string]string{name: " \n"})

			_, err := Load("")
			require.ErrorIs(t, err, ErrEmptyCredential)

			var ce *CredentialError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, name, ce.Name)
		})
	}
}

func TestLoadMissingCredential(t *testing.T) {
	home := isolate(t)
	writeCredentials(t, home, nil)
	require.NoError(t, os.Remove(filepath.Join(home, "Notion_API.txt")))

	_, err := Load("")
	require.ErrorIs(t, err, fs.ErrNotExist)

	var ce *CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, SecretNotion, ce.Name)
}

func TestCredentialsLookup(t *testing.T) {
	c := Credentials{BraveSearch: "b", SystemMessage: "s", Notion: "n", GitHub: "g"}

	v, ok := c.Lookup(SecretGitHub)
	assert.True(t, ok)
	assert.Equal(t, "g", v)

	_, ok = c.Lookup("HOME")
	assert.False(t, ok)
}

func TestLoadSettingsSkipsCredentials(t *testing.T) {
	home := isolate(t)

	cfg, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".toolagent", "toolagent.db"), cfg.Storage.DBPath)
	assert.Empty(t, cfg.Secrets.GitHub)

	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadServersEnabledByDefault(t *testing.T) {
	home := isolate(t)
	writeCredentials(t, home, nil)

	path := filepath.Join(home, "toolagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: filesystem
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "~"]
  - name: notion
    command: npx
    args: ["-y", "mcp-remote", "https://mcp.notion.com/mcp"]
    enabled: false
  - name: github
    command: npx
    args: ["-y", "@modelcontextprotocol/server-github"]
    enabled: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 3)
	assert.True(t, cfg.Servers[0].Enabled)
	assert.False(t, cfg.Servers[1].Enabled)
	assert.True(t, cfg.Servers[2].Enabled)

	var dialed []string
	dial := func(_ context.Context, d tools.ServerDescriptor, _ []string) (tools.MCPClient, error) {
		dialed = append(dialed, d.Name)
		return nil, errors.New("npx not installed")
	}
	var out bytes.Buffer
	r := tools.NewRegistry(dial)
	agg := tools.Aggregate(context.Background(), r, cfg.Servers, cfg.AllowedTools(), &out)

	assert.Equal(t, []string{"filesystem", "github"}, dialed)
	require.Len(t, agg.Outcomes, 2)
	assert.Equal(t, "filesystem", agg.Outcomes[0].Server)
	assert.Contains(t, out.String(), "filesystem: connect: connection failed: npx not installed")
}
