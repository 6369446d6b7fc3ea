package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/toolagent/internal/llm"
	"github.com/michaelbrown/toolagent/internal/tools"
)

// DefaultPrompt is the instruction `toolagent run` sends when none is given.
const DefaultPrompt = `Create a GitHub repository called 'hello_world_ollama'. Then create a file 'hello_world.py' with this code: print('Hello World!') Use create_repository, then create_or_update_file.`

type ProviderConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// Options converts the provider settings for llm.NewClient.
func (p ProviderConfig) Options() llm.Options {
	return llm.Options{
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxRetries:  p.MaxRetries,
	}
}

type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	HistoryTokens int    `mapstructure:"history_tokens"`
	ProfilesDir   string `mapstructure:"profiles_dir"`
	Prompt        string `mapstructure:"prompt"`
}

type ToolsConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Config is built once at startup and passed to every component.
type Config struct {
	Provider    ProviderConfig           `mapstructure:"provider"`
	Agent       AgentConfig              `mapstructure:"agent"`
	Tools       ToolsConfig              `mapstructure:"tools"`
	Credentials CredentialsConfig        `mapstructure:"credentials"`
	Servers     []tools.ServerDescriptor `mapstructure:"servers"`
	AllowList   []string                 `mapstructure:"allow_list"`
	Server      ServerConfig             `mapstructure:"server"`
	Storage     StorageConfig            `mapstructure:"storage"`

	Secrets Credentials `mapstructure:"-"`
}

// Load reads toolagent.yaml (from path, or from . and $HOME/.toolagent when
// path is empty), applies TOOLAGENT_* environment overrides, then loads the
// credential files. A missing config file is not an error; a missing or
// empty credential file is.
func Load(path string) (*Config, error) {
	cfg, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}

	secrets, err := LoadCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = *secrets
	return cfg, nil
}

// LoadSettings is Load without the credential files, for commands that only
// inspect stored runs.
func LoadSettings(path string) (*Config, error) {
	home, _ := os.UserHomeDir()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toolagent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".toolagent"))
	}

	v.SetEnvPrefix("toolagent")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider.base_url", "http://localhost:11434/v1")
	v.SetDefault("provider.api_key", "ollama")
	v.SetDefault("provider.model", "llama3.1:8b")
	v.SetDefault("provider.temperature", 0.1)
	v.SetDefault("provider.max_retries", 2)
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.history_tokens", 6000)
	v.SetDefault("agent.profiles_dir", filepath.Join(home, ".toolagent", "profiles"))
	v.SetDefault("agent.prompt", DefaultPrompt)
	v.SetDefault("tools.connect_timeout", 30*time.Second)
	v.SetDefault("credentials.dir", ".")
	v.SetDefault("credentials.brave_search", "BraveSearchAPI.txt")
	v.SetDefault("credentials.system_message", "SystemMessage.txt")
	v.SetDefault("credentials.notion", "Notion_API.txt")
	v.SetDefault("credentials.github", "Github_API.txt")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(home, ".toolagent", "toolagent.db"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if v.IsSet("servers") {
		raw, _ := v.Get("servers").([]any)
		for i, s := range cfg.Servers {
			// viper lower-cases map keys; env var names are restored to upper case.
			cfg.Servers[i].Env = upperKeys(s.Env)
			if i < len(raw) && !hasKey(raw[i], "enabled") {
				cfg.Servers[i].Enabled = true
			}
		}
	} else {
		cfg.Servers = DefaultServers()
	}
	if !v.IsSet("allow_list") {
		cfg.AllowList = DefaultAllowList()
	}

	for i, s := range cfg.Servers {
		cfg.Servers[i].Args = expandHome(s.Args, home)
	}
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath, home)
	cfg.Agent.ProfilesDir = expandPath(cfg.Agent.ProfilesDir, home)
	cfg.Credentials.Dir = expandPath(cfg.Credentials.Dir, home)
	return &cfg, nil
}

// hasKey reports whether a decoded server entry sets key. Servers without
// an explicit enabled key are enabled.
func hasKey(entry any, key string) bool {
	switch m := entry.(type) {
	case map[string]any:
		_, ok := m[key]
		return ok
	case map[any]any:
		_, ok := m[key]
		return ok
	}
	return false
}

func upperKeys(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}

func expandHome(args []string, home string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = expandPath(a, home)
	}
	return out
}

func expandPath(p, home string) string {
	switch {
	case p == "~":
		return home
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(home, p[2:])
	}
	return p
}

// AllowedTools returns the allow-list as a lookup set.
func (c *Config) AllowedTools() tools.AllowList {
	return tools.NewAllowList(c.AllowList...)
}

// Summary is a one-line description of the endpoint in use.
func (c *Config) Summary() string {
	return fmt.Sprintf("Model: %s | Endpoint: %s", c.Provider.Model, c.Provider.BaseURL)
}
