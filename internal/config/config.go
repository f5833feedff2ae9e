// Package config handles valet configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"valet/internal/email"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/valet/config.yaml, /etc/valet/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "valet", "config.yaml"))
	}

	paths = append(paths, "/etc/valet/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all valet configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	APIToken string         `yaml:"api_token"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	History  HistoryConfig  `yaml:"history"`
	Email    email.Config   `yaml:"email"`
	Calendar CalendarConfig `yaml:"calendar"`
	Search   SearchConfig   `yaml:"search"`
	Docs     DocsConfig     `yaml:"docs"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8000
}

// ModelConfig defines the reasoning model provider settings.
type ModelConfig struct {
	// BaseURL is the root of an OpenAI-compatible chat completions API.
	// Default: https://openrouter.ai/api/v1.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the provider. Required.
	APIKey string `yaml:"api_key"`

	// Name is the model identifier sent with every request
	// (e.g., "openai/gpt-4o-mini").
	Name string `yaml:"name"`

	// Temperature is the sampling temperature. Default: 0.5.
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	// MaxIterations bounds the tool-calling loop per turn. Default: 5.
	MaxIterations int `yaml:"max_iterations"`

	// SystemPrompt overrides the built-in assistant instructions.
	SystemPrompt string `yaml:"system_prompt"`
}

// HistoryConfig defines conversation persistence settings.
type HistoryConfig struct {
	// Path is the SQLite database file. Empty means in-memory only
	// (history does not survive a restart).
	Path string `yaml:"path"`
}

// CalendarConfig defines the CalDAV connection for the calendar tool.
type CalendarConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether a CalDAV endpoint is set.
func (c CalendarConfig) Configured() bool {
	return c.URL != ""
}

// SearchConfig selects and configures web search providers.
type SearchConfig struct {
	// Primary names the default provider ("searxng" or "brave").
	Primary string `yaml:"primary"`

	SearXNG SearXNGConfig `yaml:"searxng"`
	Brave   BraveConfig   `yaml:"brave"`
}

// SearXNGConfig holds the SearXNG instance URL.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// DocsConfig defines the knowledge base used by the retrieval tool.
type DocsConfig struct {
	// Path is the SQLite database holding ingested documents. Empty
	// disables the knowledge_search tool.
	Path string `yaml:"path"`

	// IngestDir is scanned for .md and .txt files at startup; new or
	// changed files are (re)indexed.
	IngestDir string `yaml:"ingest_dir"`
}

// Load reads configuration from a YAML file. Environment variable
// references (${VAR}) in the file are expanded before parsing so that
// secrets can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8000},
		Model: ModelConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Name:        "openai/gpt-4o-mini",
			Temperature: 0.5,
		},
		Agent: AgentConfig{MaxIterations: 5},
	}
}

// applyDefaults fills zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8000
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Model.Name == "" {
		c.Model.Name = "openai/gpt-4o-mini"
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.5
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 5
	}
	if c.Search.Primary == "" {
		c.Search.Primary = "searxng"
	}
	c.Email.ApplyDefaults()
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("api_token must be set")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key must be set")
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if err := c.Email.Validate(); err != nil {
		return err
	}
	return nil
}
