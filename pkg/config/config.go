package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides the API key of the default provider when set.
const APIKeyEnv = "TABPILOT_API_KEY"

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	Browser   BrowserConfig             `json:"browser" yaml:"browser"`
	Agent     AgentConfig               `json:"agent" yaml:"agent"`
}

type AppConfig struct {
	Name          string `json:"name" yaml:"name"`
	Mode          string `json:"mode" yaml:"mode"`
	MaxIterations int    `json:"max_iterations" yaml:"max_iterations"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type BrowserConfig struct {
	Headless           bool `json:"headless" yaml:"headless"`
	HostTimeoutSeconds int  `json:"host_timeout_seconds" yaml:"host_timeout_seconds"`
}

type AgentConfig struct {
	PromptsDir    string `json:"prompts_dir" yaml:"prompts_dir"`
	RestreamMinMS int    `json:"restream_min_ms" yaml:"restream_min_ms"`
	RestreamMaxMS int    `json:"restream_max_ms" yaml:"restream_max_ms"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a JSON or YAML (.yaml, .yml) config file and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "TabPilot"
	}
	if c.App.Mode == "" {
		c.App.Mode = "restricted"
	}
	if c.App.MaxIterations <= 0 {
		c.App.MaxIterations = 12
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = ":memory:"
	}
	if c.Browser.HostTimeoutSeconds <= 0 {
		c.Browser.HostTimeoutSeconds = 15
	}
	if c.Agent.RestreamMinMS <= 0 {
		c.Agent.RestreamMinMS = 15
	}
	if c.Agent.RestreamMaxMS < c.Agent.RestreamMinMS {
		c.Agent.RestreamMaxMS = c.Agent.RestreamMinMS + 30
	}
}

// HostTimeout returns the browser host timeout.
func (c *Config) HostTimeout() time.Duration {
	return time.Duration(c.Browser.HostTimeoutSeconds) * time.Second
}

// RestreamDelay returns the per-word delay range of the final answer.
func (c *Config) RestreamDelay() (time.Duration, time.Duration) {
	return time.Duration(c.Agent.RestreamMinMS) * time.Millisecond,
		time.Duration(c.Agent.RestreamMaxMS) * time.Millisecond
}

// GetDefaultProvider returns the first enabled provider in name order. The
// APIKeyEnv variable overrides its key.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := c.Providers[name]
		if !p.Enabled {
			continue
		}
		if key := os.Getenv(APIKeyEnv); key != "" {
			p.APIKey = key
		}
		return name, p
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns a gateway's config if it is enabled.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}
