package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadGatewayConfigAppliesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_ASSISTANT_ID", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "aigateway.toml")
	content := `
listen_addr = "127.0.0.1:9090"

[upstream]
api_key = "sk-test"
assistant_id = "asst_123"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9090" {
		t.Fatalf("unexpected listen_addr: %q", cfg.ListenAddr)
	}
	if cfg.Upstream.BaseURL != "https://api.openai.com/v1" {
		t.Fatalf("unexpected base_url: %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.ChatModel != "gpt-4o" || cfg.Upstream.ImageModel != "dall-e-3" {
		t.Fatalf("unexpected model defaults: %q %q", cfg.Upstream.ChatModel, cfg.Upstream.ImageModel)
	}
	if cfg.Upstream.TimeoutSeconds != 120 {
		t.Fatalf("unexpected timeout: %d", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
}

func TestLoadGatewayConfigEnvFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_ASSISTANT_ID", "asst_env")
	dir := t.TempDir()
	path := filepath.Join(dir, "aigateway.toml")
	if err := os.WriteFile(path, []byte("listen_addr = \"127.0.0.1:0\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-env" {
		t.Fatalf("expected api key from env, got %q", cfg.Upstream.APIKey)
	}
	if cfg.Upstream.AssistantID != "asst_env" {
		t.Fatalf("expected assistant id from env, got %q", cfg.Upstream.AssistantID)
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := NewDefaultGatewayConfig()
	cfg.Normalize()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error without api key")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTLSNeedsDomain(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := NewDefaultGatewayConfig()
	cfg.TLS.Enabled = true
	cfg.Normalize()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for tls without domain")
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "aigateway.toml")
	cfg, err := LoadOrCreateGatewayConfig(path)
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
}
