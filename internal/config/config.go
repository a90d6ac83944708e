// Package config loads codecrew settings from defaults, an optional YAML
// file and CODECREW_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides:
// CODECREW_WORKFLOW_MAX_ITERATIONS -> workflow.max_iterations.
const EnvPrefix = "CODECREW_"

// Supported values for the enumerated settings.
var (
	Providers     = []string{"ollama", "openai", "gemini", "anthropic", "google"}
	StoreDrivers  = []string{"memory", "sqlite", "mysql"}
	SelectorKinds = []string{"linear", "model", "lua"}
	LogFormats    = []string{"text", "json"}
	LogLevels     = []string{"debug", "info", "warn", "warning", "error"}
)

type Config struct {
	Log      LogConfig      `koanf:"log"`
	Workflow WorkflowConfig `koanf:"workflow"`
	Model    ModelConfig    `koanf:"model"`
	Selector SelectorConfig `koanf:"selector"`
	Roles    RolesConfig    `koanf:"roles"`
	Store    StoreConfig    `koanf:"store"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Tracing  TracingConfig  `koanf:"tracing"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type WorkflowConfig struct {
	MaxIterations   int           `koanf:"max_iterations"`
	CompletionToken string        `koanf:"completion_token"`
	TurnTimeout     time.Duration `koanf:"turn_timeout"`
	Retry           RetryConfig   `koanf:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

type ModelConfig struct {
	Provider string `koanf:"provider"` // ollama, openai, gemini, anthropic, google
	Name     string `koanf:"name"`     // empty uses the provider default
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type SelectorConfig struct {
	Kind   string `koanf:"kind"`   // linear, model, lua
	Script string `koanf:"script"` // path to a Lua script when kind is lua
	// Model drives the model selector. An empty provider reuses the role model.
	Model ModelConfig `koanf:"model"`
}

type RolesConfig struct {
	File string `koanf:"file"` // YAML role catalogue layered over the defaults
	// Models overrides the model per role name.
	Models map[string]ModelConfig `koanf:"models"`
}

type StoreConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite, mysql
	DSN    string `koanf:"dsn"`    // file path for sqlite, DSN for mysql
}

type MetricsConfig struct {
	Addr string `koanf:"addr"` // listen address for /metrics; empty disables
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":                   "info",
		"log.format":                  "text",
		"workflow.max_iterations":     20,
		"workflow.completion_token":   "WORKFLOW_COMPLETE",
		"workflow.turn_timeout":       time.Duration(0),
		"workflow.retry.max_attempts": 1,
		"workflow.retry.base_delay":   time.Second,
		"workflow.retry.max_delay":    30 * time.Second,
		"model.provider":              "ollama",
		"model.name":                  "",
		"model.base_url":              "",
		"model.api_key":               "",
		"selector.kind":               "linear",
		"selector.script":             "",
		"selector.model.provider":     "",
		"selector.model.name":         "",
		"selector.model.base_url":     "",
		"selector.model.api_key":      "",
		"roles.file":                  "",
		"store.driver":                "memory",
		"store.dsn":                   "",
		"metrics.addr":                "",
		"tracing.enabled":             false,
	}
}

// Load reads configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	envKeys := make(map[string]string)
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
		envKeys[EnvPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// Env names are matched against the known keys because key segments
	// themselves contain underscores. Unknown variables are ignored.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !oneOf(c.Model.Provider, Providers) {
		return fmt.Errorf("model.provider %q: want one of %s", c.Model.Provider, strings.Join(Providers, ", "))
	}
	if !oneOf(c.Store.Driver, StoreDrivers) {
		return fmt.Errorf("store.driver %q: want one of %s", c.Store.Driver, strings.Join(StoreDrivers, ", "))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
	}
	if !oneOf(c.Selector.Kind, SelectorKinds) {
		return fmt.Errorf("selector.kind %q: want one of %s", c.Selector.Kind, strings.Join(SelectorKinds, ", "))
	}
	if c.Selector.Kind == "lua" && c.Selector.Script == "" {
		return fmt.Errorf("selector.script is required for the lua selector")
	}
	if p := c.Selector.Model.Provider; p != "" && !oneOf(p, Providers) {
		return fmt.Errorf("selector.model.provider %q: want one of %s", p, strings.Join(Providers, ", "))
	}
	for role, m := range c.Roles.Models {
		if m.Provider != "" && !oneOf(m.Provider, Providers) {
			return fmt.Errorf("roles.models.%s.provider %q: want one of %s", role, m.Provider, strings.Join(Providers, ", "))
		}
	}
	if !oneOf(strings.ToLower(c.Log.Format), LogFormats) {
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	if !oneOf(strings.ToLower(c.Log.Level), LogLevels) {
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	if c.Workflow.MaxIterations < 4 {
		return fmt.Errorf("workflow.max_iterations must be at least 4, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.CompletionToken == "" {
		return fmt.Errorf("workflow.completion_token must not be empty")
	}
	if c.Workflow.TurnTimeout < 0 {
		return fmt.Errorf("workflow.turn_timeout must not be negative")
	}
	if c.Workflow.Retry.MaxAttempts < 1 {
		return fmt.Errorf("workflow.retry.max_attempts must be at least 1")
	}
	return nil
}

// Inherit fills the unset fields of m from base. Name, base URL and key are
// only inherited when m uses base's provider; a different provider keeps
// its own defaults.
func (m ModelConfig) Inherit(base ModelConfig) ModelConfig {
	if m.Provider == "" {
		m.Provider = base.Provider
	}
	if m.Provider != base.Provider {
		return m
	}
	if m.Name == "" {
		m.Name = base.Name
	}
	if m.BaseURL == "" {
		m.BaseURL = base.BaseURL
	}
	if m.APIKey == "" {
		m.APIKey = base.APIKey
	}
	return m
}

// ResolveAPIKey returns the configured key or, when empty, the provider's
// conventional environment variable.
func (m ModelConfig) ResolveAPIKey() string {
	if m.APIKey != "" {
		return m.APIKey
	}
	switch m.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini", "google":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
