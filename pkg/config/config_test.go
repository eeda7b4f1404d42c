package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSONWithDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"app": {"name": "pilot", "mode": "unrestricted"},
		"gateways": {"telegram": {"token": "tg", "enabled": true}, "discord": {"token": "dc", "enabled": false}},
		"providers": {"openai": {"api_key": "sk-file", "model": "gpt-4o-mini", "enabled": true}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Name != "pilot" || cfg.App.Mode != "unrestricted" {
		t.Errorf("unexpected app config %+v", cfg.App)
	}
	if cfg.App.MaxIterations != 12 || cfg.Memory.Path != ":memory:" || cfg.HostTimeout() != 15*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	lo, hi := cfg.RestreamDelay()
	if lo != 15*time.Millisecond || hi != 45*time.Millisecond {
		t.Errorf("unexpected restream delay %v-%v", lo, hi)
	}
	if _, ok := cfg.GetGatewayConfig("telegram"); !ok {
		t.Error("telegram should be enabled")
	}
	if _, ok := cfg.GetGatewayConfig("discord"); ok {
		t.Error("discord should be disabled")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  mode: restricted
  max_iterations: 5
browser:
  headless: true
  host_timeout_seconds: 3
agent:
  prompts_dir: ./prompts
providers:
  openai:
    api_key: sk-yaml
    model: gpt-4o
    enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.MaxIterations != 5 || !cfg.Browser.Headless || cfg.HostTimeout() != 3*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Agent.PromptsDir != "./prompts" {
		t.Errorf("prompts dir %q", cfg.Agent.PromptsDir)
	}
}

func TestGetDefaultProvider_EnvOverride(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderConfig{
		"b": {APIKey: "key-b", Enabled: true},
		"a": {APIKey: "key-a", Enabled: false},
		"c": {APIKey: "key-c", Enabled: true},
	}

	t.Setenv(APIKeyEnv, "")
	name, p := cfg.GetDefaultProvider()
	if name != "b" || p.APIKey != "key-b" {
		t.Errorf("expected first enabled provider b, got %s %+v", name, p)
	}

	t.Setenv(APIKeyEnv, "from-env")
	if _, p := cfg.GetDefaultProvider(); p.APIKey != "from-env" {
		t.Errorf("env override ignored: %+v", p)
	}
	if cfg.Providers["b"].APIKey != "key-b" {
		t.Error("env override leaked into the config")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := Load(writeFile(t, "bad.json", "{")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
